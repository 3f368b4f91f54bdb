package engine

import (
	"context"
	"math/big"

	"nexum/native/lending"
	"nexum/native/receivables"
	"nexum/native/vault"
)

// Engine describes the operations required by the lending HTTP surface. The
// acting principals travel in ctx (see core/auth).
type Engine interface {
	MintReceivable(ctx context.Context, creditor [20]byte, params receivables.MintParams) (uint64, error)
	TransferReceivable(ctx context.Context, id uint64, from, to [20]byte) error
	SettleReceivable(ctx context.Context, id uint64) error
	DefaultReceivable(ctx context.Context, id uint64) error
	MatureReceivable(ctx context.Context, id uint64) error
	GetReceivable(ctx context.Context, id uint64) (*receivables.Receivable, error)
	OwnerReceivables(ctx context.Context, owner [20]byte) ([]uint64, error)
	ReceivableStats(ctx context.Context) (ReceivableStats, error)

	Deposit(ctx context.Context, depositor [20]byte, amount *big.Int) (*big.Int, error)
	Withdraw(ctx context.Context, depositor [20]byte, shares *big.Int) (*big.Int, error)
	WithdrawReserves(ctx context.Context, recipient [20]byte, amount *big.Int) error
	GetVault(ctx context.Context) (VaultSnapshot, error)
	GetPosition(ctx context.Context, depositor [20]byte) (Position, error)

	Borrow(ctx context.Context, borrower [20]byte, receivableIDs []uint64, amount *big.Int, duration uint64) (*lending.Loan, error)
	Repay(ctx context.Context, borrower [20]byte, loanID uint64, amount *big.Int) (*big.Int, error)
	Liquidate(ctx context.Context, liquidator [20]byte, loanID uint64) (*lending.Liquidation, error)
	AccrueInterest(ctx context.Context, loanID uint64) (*big.Int, error)
	GetLoan(ctx context.Context, loanID uint64) (*lending.Loan, error)
	GetHealth(ctx context.Context, loanID uint64) (*lending.Health, error)
	BorrowerLoans(ctx context.Context, borrower [20]byte) ([]uint64, error)
	GetConfig(ctx context.Context) (lending.Config, error)
	SetConfig(ctx context.Context, cfg lending.Config) error

	SetPaused(ctx context.Context, module string, paused bool) error
}

// ReceivableStats summarises registry counters.
type ReceivableStats struct {
	TotalMinted uint64 `json:"totalMinted"`
	TotalActive uint64 `json:"totalActive"`
	Paused      bool   `json:"paused"`
}

// VaultSnapshot combines the persisted pool state with derived figures.
type VaultSnapshot struct {
	State              *vault.State
	TotalAssets        *big.Int
	AvailableLiquidity *big.Int
	UtilizationBps     uint64
	Paused             bool
}

// Position reports a depositor's shares and their current redemption value.
type Position struct {
	Position *vault.Position
	Value    *big.Int
}
