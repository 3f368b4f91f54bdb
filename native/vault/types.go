package vault

import (
	"math/big"

	nativecommon "nexum/native/common"
)

// DefaultMaxUtilization caps borrowed/deposits at 90% unless configured.
const DefaultMaxUtilization uint64 = 9_000

// Params captures the admin-supplied settings applied at initialisation.
type Params struct {
	// BaseAsset is the ledger symbol of the pooled liquidity.
	BaseAsset string `toml:"base_asset" yaml:"base_asset"`
	// ReserveFactor is the share of interest retained as protocol reserves,
	// expressed in basis points.
	ReserveFactor uint64 `toml:"reserve_factor_bps" yaml:"reserve_factor_bps"`
	// MaxUtilization bounds total_borrowed/total_deposits in basis points.
	// Zero selects DefaultMaxUtilization.
	MaxUtilization uint64 `toml:"max_utilization_bps" yaml:"max_utilization_bps"`
	// MinDeposit rejects dust deposits below this amount.
	MinDeposit *big.Int `toml:"-" yaml:"-"`
}

// State is the persisted pool accounting.
type State struct {
	Admin        [20]byte
	BorrowEngine [20]byte
	BaseAsset    string

	TotalDeposits       *big.Int
	TotalShares         *big.Int
	TotalBorrowed       *big.Int
	TotalInterestEarned *big.Int
	ProtocolReserves    *big.Int

	ReserveFactor  uint64
	MaxUtilization uint64
	MinDeposit     *big.Int
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalDeposits = nativecommon.CopyAmount(s.TotalDeposits)
	clone.TotalShares = nativecommon.CopyAmount(s.TotalShares)
	clone.TotalBorrowed = nativecommon.CopyAmount(s.TotalBorrowed)
	clone.TotalInterestEarned = nativecommon.CopyAmount(s.TotalInterestEarned)
	clone.ProtocolReserves = nativecommon.CopyAmount(s.ProtocolReserves)
	clone.MinDeposit = nativecommon.CopyAmount(s.MinDeposit)
	return &clone
}

// TotalAssets returns deposits plus earned interest minus protocol reserves,
// floored at zero.
func (s *State) TotalAssets() *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	gross := new(big.Int).Add(nativecommon.Amount(s.TotalDeposits), nativecommon.Amount(s.TotalInterestEarned))
	return nativecommon.SaturatingSub(gross, s.ProtocolReserves)
}

// AvailableLiquidity returns deposits not currently lent out.
func (s *State) AvailableLiquidity() *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	return nativecommon.SaturatingSub(s.TotalDeposits, s.TotalBorrowed)
}

// HasBorrowEngine reports whether the borrow engine capability was configured.
func (s *State) HasBorrowEngine() bool {
	return s != nil && s.BorrowEngine != [20]byte{}
}

// Position is a liquidity provider's claim on the pool.
type Position struct {
	Shares           *big.Int
	DepositTimestamp uint64
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Shares = nativecommon.CopyAmount(p.Shares)
	return &clone
}
