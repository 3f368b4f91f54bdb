package events

import (
	"math/big"

	"nexum/core/types"
)

const (
	TypeVaultDeposit          = "vault.deposit"
	TypeVaultWithdraw         = "vault.withdraw"
	TypeVaultDisburse         = "vault.disburse"
	TypeVaultRepay            = "vault.repay"
	TypeVaultLiquidation      = "vault.liquidation"
	TypeVaultReservesWithdraw = "vault.reserves_withdrawn"
)

// VaultDeposit is emitted when a liquidity provider adds funds.
type VaultDeposit struct {
	Depositor [20]byte
	Amount    *big.Int
	Shares    *big.Int
}

func (VaultDeposit) EventType() string { return TypeVaultDeposit }

func (e VaultDeposit) Event() *types.Event {
	return &types.Event{Type: TypeVaultDeposit, Attributes: map[string]string{
		"depositor": formatAddress(e.Depositor),
		"amount":    formatAmount(e.Amount),
		"shares":    formatAmount(e.Shares),
	}}
}

// VaultWithdraw is emitted when a liquidity provider burns shares.
type VaultWithdraw struct {
	Depositor [20]byte
	Amount    *big.Int
	Shares    *big.Int
}

func (VaultWithdraw) EventType() string { return TypeVaultWithdraw }

func (e VaultWithdraw) Event() *types.Event {
	return &types.Event{Type: TypeVaultWithdraw, Attributes: map[string]string{
		"depositor": formatAddress(e.Depositor),
		"amount":    formatAmount(e.Amount),
		"shares":    formatAmount(e.Shares),
	}}
}

// VaultDisburse is emitted when pooled liquidity leaves for a borrower.
type VaultDisburse struct {
	Borrower [20]byte
	Amount   *big.Int
}

func (VaultDisburse) EventType() string { return TypeVaultDisburse }

func (e VaultDisburse) Event() *types.Event {
	return &types.Event{Type: TypeVaultDisburse, Attributes: map[string]string{
		"borrower": formatAddress(e.Borrower),
		"amount":   formatAmount(e.Amount),
	}}
}

// VaultRepay records the split of a repayment between principal, LP yield,
// and protocol reserves.
type VaultRepay struct {
	Borrower      [20]byte
	Principal     *big.Int
	Interest      *big.Int
	ProtocolShare *big.Int
}

func (VaultRepay) EventType() string { return TypeVaultRepay }

func (e VaultRepay) Event() *types.Event {
	return &types.Event{Type: TypeVaultRepay, Attributes: map[string]string{
		"borrower":      formatAddress(e.Borrower),
		"principal":     formatAmount(e.Principal),
		"interest":      formatAmount(e.Interest),
		"protocolShare": formatAmount(e.ProtocolShare),
	}}
}

// VaultLiquidation records the bookkeeping applied after a liquidation.
type VaultLiquidation struct {
	Recovered *big.Int
	Shortfall *big.Int
}

func (VaultLiquidation) EventType() string { return TypeVaultLiquidation }

func (e VaultLiquidation) Event() *types.Event {
	return &types.Event{Type: TypeVaultLiquidation, Attributes: map[string]string{
		"recovered": formatAmount(e.Recovered),
		"shortfall": formatAmount(e.Shortfall),
	}}
}

// VaultReservesWithdrawn is emitted when the admin sweeps protocol reserves.
type VaultReservesWithdrawn struct {
	Recipient [20]byte
	Amount    *big.Int
}

func (VaultReservesWithdrawn) EventType() string { return TypeVaultReservesWithdraw }

func (e VaultReservesWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeVaultReservesWithdraw, Attributes: map[string]string{
		"recipient": formatAddress(e.Recipient),
		"amount":    formatAmount(e.Amount),
	}}
}
