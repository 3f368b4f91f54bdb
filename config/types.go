package config

import "math/big"

// VaultGenesis configures the lending vault at bootstrap.
type VaultGenesis struct {
	BaseAsset         string `toml:"BaseAsset"`
	ReserveFactorBps  uint64 `toml:"ReserveFactorBps"`
	MaxUtilizationBps uint64 `toml:"MaxUtilizationBps"`
	// MinDeposit is a decimal string in base units.
	MinDeposit string `toml:"MinDeposit"`

	minDeposit *big.Int
}

// Pauses lists the components that start halted.
type Pauses struct {
	Receivables bool `toml:"Receivables"`
	Vault       bool `toml:"Vault"`
	Lending     bool `toml:"Lending"`
}

// Allocation funds an account with a balance of asset at bootstrap.
type Allocation struct {
	Address string `toml:"Address"`
	Asset   string `toml:"Asset"`
	Amount  string `toml:"Amount"`

	address [20]byte
	amount  *big.Int
}

// Account returns the parsed address. Valid after Validate.
func (a Allocation) Account() [20]byte { return a.address }

// Value returns the parsed amount. Valid after Validate.
func (a Allocation) Value() *big.Int {
	if a.amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.amount)
}
