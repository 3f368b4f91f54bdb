package server

import (
	"context"
	"math/big"

	"nexum/native/lending"
	"nexum/native/receivables"
	"nexum/services/lending/engine"
)

type fakeEngine struct {
	mintFn          func(ctx context.Context, creditor [20]byte, params receivables.MintParams) (uint64, error)
	transferFn      func(ctx context.Context, id uint64, from, to [20]byte) error
	settleFn        func(ctx context.Context, id uint64) error
	getReceivableFn func(ctx context.Context, id uint64) (*receivables.Receivable, error)
	depositFn       func(ctx context.Context, depositor [20]byte, amount *big.Int) (*big.Int, error)
	withdrawFn      func(ctx context.Context, depositor [20]byte, shares *big.Int) (*big.Int, error)
	getVaultFn      func(ctx context.Context) (engine.VaultSnapshot, error)
	borrowFn        func(ctx context.Context, borrower [20]byte, ids []uint64, amount *big.Int, duration uint64) (*lending.Loan, error)
	repayFn         func(ctx context.Context, borrower [20]byte, loanID uint64, amount *big.Int) (*big.Int, error)
	liquidateFn     func(ctx context.Context, liquidator [20]byte, loanID uint64) (*lending.Liquidation, error)
	getLoanFn       func(ctx context.Context, loanID uint64) (*lending.Loan, error)
	setPausedFn     func(ctx context.Context, module string, paused bool) error
	setConfigFn     func(ctx context.Context, cfg lending.Config) error
}

func (f *fakeEngine) MintReceivable(ctx context.Context, creditor [20]byte, params receivables.MintParams) (uint64, error) {
	if f != nil && f.mintFn != nil {
		return f.mintFn(ctx, creditor, params)
	}
	return 1, nil
}

func (f *fakeEngine) TransferReceivable(ctx context.Context, id uint64, from, to [20]byte) error {
	if f != nil && f.transferFn != nil {
		return f.transferFn(ctx, id, from, to)
	}
	return nil
}

func (f *fakeEngine) SettleReceivable(ctx context.Context, id uint64) error {
	if f != nil && f.settleFn != nil {
		return f.settleFn(ctx, id)
	}
	return nil
}

func (f *fakeEngine) DefaultReceivable(context.Context, uint64) error { return nil }

func (f *fakeEngine) MatureReceivable(context.Context, uint64) error { return nil }

func (f *fakeEngine) GetReceivable(ctx context.Context, id uint64) (*receivables.Receivable, error) {
	if f != nil && f.getReceivableFn != nil {
		return f.getReceivableFn(ctx, id)
	}
	return &receivables.Receivable{ID: id, FaceValue: big.NewInt(0)}, nil
}

func (f *fakeEngine) OwnerReceivables(context.Context, [20]byte) ([]uint64, error) {
	return nil, nil
}

func (f *fakeEngine) ReceivableStats(context.Context) (engine.ReceivableStats, error) {
	return engine.ReceivableStats{}, nil
}

func (f *fakeEngine) Deposit(ctx context.Context, depositor [20]byte, amount *big.Int) (*big.Int, error) {
	if f != nil && f.depositFn != nil {
		return f.depositFn(ctx, depositor, amount)
	}
	return new(big.Int).Set(amount), nil
}

func (f *fakeEngine) Withdraw(ctx context.Context, depositor [20]byte, shares *big.Int) (*big.Int, error) {
	if f != nil && f.withdrawFn != nil {
		return f.withdrawFn(ctx, depositor, shares)
	}
	return new(big.Int).Set(shares), nil
}

func (f *fakeEngine) WithdrawReserves(context.Context, [20]byte, *big.Int) error { return nil }

func (f *fakeEngine) GetVault(ctx context.Context) (engine.VaultSnapshot, error) {
	if f != nil && f.getVaultFn != nil {
		return f.getVaultFn(ctx)
	}
	return engine.VaultSnapshot{}, nil
}

func (f *fakeEngine) GetPosition(context.Context, [20]byte) (engine.Position, error) {
	return engine.Position{}, engine.ErrNotFound
}

func (f *fakeEngine) Borrow(ctx context.Context, borrower [20]byte, ids []uint64, amount *big.Int, duration uint64) (*lending.Loan, error) {
	if f != nil && f.borrowFn != nil {
		return f.borrowFn(ctx, borrower, ids, amount, duration)
	}
	return &lending.Loan{ID: 1, Borrower: borrower, ReceivableIDs: ids, Principal: amount}, nil
}

func (f *fakeEngine) Repay(ctx context.Context, borrower [20]byte, loanID uint64, amount *big.Int) (*big.Int, error) {
	if f != nil && f.repayFn != nil {
		return f.repayFn(ctx, borrower, loanID, amount)
	}
	return big.NewInt(0), nil
}

func (f *fakeEngine) Liquidate(ctx context.Context, liquidator [20]byte, loanID uint64) (*lending.Liquidation, error) {
	if f != nil && f.liquidateFn != nil {
		return f.liquidateFn(ctx, liquidator, loanID)
	}
	return &lending.Liquidation{LoanID: loanID, Liquidator: liquidator}, nil
}

func (f *fakeEngine) AccrueInterest(context.Context, uint64) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeEngine) GetLoan(ctx context.Context, loanID uint64) (*lending.Loan, error) {
	if f != nil && f.getLoanFn != nil {
		return f.getLoanFn(ctx, loanID)
	}
	return nil, engine.ErrNotFound
}

func (f *fakeEngine) GetHealth(context.Context, uint64) (*lending.Health, error) {
	return &lending.Health{}, nil
}

func (f *fakeEngine) BorrowerLoans(context.Context, [20]byte) ([]uint64, error) {
	return nil, nil
}

func (f *fakeEngine) GetConfig(context.Context) (lending.Config, error) {
	return lending.DefaultConfig(), nil
}

func (f *fakeEngine) SetConfig(ctx context.Context, cfg lending.Config) error {
	if f != nil && f.setConfigFn != nil {
		return f.setConfigFn(ctx, cfg)
	}
	return nil
}

func (f *fakeEngine) SetPaused(ctx context.Context, module string, paused bool) error {
	if f != nil && f.setPausedFn != nil {
		return f.setPausedFn(ctx, module, paused)
	}
	return nil
}
