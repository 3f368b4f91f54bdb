package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nexum/core"
	"nexum/core/auth"
	"nexum/native/bank"
	nativecommon "nexum/native/common"
	"nexum/native/lending"
	"nexum/native/receivables"
	"nexum/native/vault"
	"nexum/observability"
)

type protocolAdapter struct {
	protocol *core.Protocol
	metrics  *observability.LendingMetrics
	tracer   trace.Tracer
}

// NewProtocolAdapter wires a protocol instance into the Engine abstraction
// expected by the service.
func NewProtocolAdapter(protocol *core.Protocol) Engine {
	return &protocolAdapter{
		protocol: protocol,
		metrics:  observability.Lending(),
		tracer:   otel.Tracer("nexum/services/lending"),
	}
}

// execute runs a mutating operation, records its latency and outcome, and
// maps protocol errors onto the service sentinels.
func (a *protocolAdapter) execute(ctx context.Context, op string, fn func(*core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(auth.Principals(ctx)) == 0 {
		return ErrUnauthorized
	}
	ctx, span := a.tracer.Start(ctx, "lending."+op, trace.WithAttributes(attribute.String("lending.operation", op)))
	defer span.End()

	start := time.Now()
	utilization := uint64(0)
	err := a.protocol.Execute(ctx, op, func(tx *core.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if bps, uerr := tx.Vault.Utilization(); uerr == nil {
			utilization = bps
		}
		return nil
	})
	a.metrics.ObserveOperation(op, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return translateError(err)
	}
	a.metrics.SetUtilization(utilization)
	return nil
}

func (a *protocolAdapter) view(ctx context.Context, fn func(*core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.protocol.View(fn); err != nil {
		return translateError(err)
	}
	return nil
}

func (a *protocolAdapter) MintReceivable(ctx context.Context, creditor [20]byte, params receivables.MintParams) (uint64, error) {
	var id uint64
	err := a.execute(ctx, "mint_receivable", func(tx *core.Tx) error {
		minted, err := tx.Registry.Mint(ctx, creditor, params)
		id = minted
		return err
	})
	return id, err
}

func (a *protocolAdapter) TransferReceivable(ctx context.Context, id uint64, from, to [20]byte) error {
	return a.execute(ctx, "transfer_receivable", func(tx *core.Tx) error {
		return tx.Registry.Transfer(ctx, id, from, to)
	})
}

func (a *protocolAdapter) SettleReceivable(ctx context.Context, id uint64) error {
	return a.execute(ctx, "settle_receivable", func(tx *core.Tx) error {
		return tx.Registry.Settle(ctx, id)
	})
}

func (a *protocolAdapter) DefaultReceivable(ctx context.Context, id uint64) error {
	return a.execute(ctx, "default_receivable", func(tx *core.Tx) error {
		return tx.Registry.MarkDefault(ctx, id)
	})
}

func (a *protocolAdapter) MatureReceivable(ctx context.Context, id uint64) error {
	return a.execute(ctx, "mature_receivable", func(tx *core.Tx) error {
		return tx.Registry.Mature(ctx, id)
	})
}

func (a *protocolAdapter) GetReceivable(ctx context.Context, id uint64) (*receivables.Receivable, error) {
	var out *receivables.Receivable
	err := a.view(ctx, func(tx *core.Tx) error {
		rec, err := tx.Registry.Receivable(id)
		out = rec
		return err
	})
	return out, err
}

func (a *protocolAdapter) OwnerReceivables(ctx context.Context, owner [20]byte) ([]uint64, error) {
	var out []uint64
	err := a.view(ctx, func(tx *core.Tx) error {
		ids, err := tx.Registry.OwnerReceivables(owner)
		out = ids
		return err
	})
	return out, err
}

func (a *protocolAdapter) ReceivableStats(ctx context.Context) (ReceivableStats, error) {
	var out ReceivableStats
	err := a.view(ctx, func(tx *core.Tx) error {
		counters, err := tx.Registry.Counters()
		if err != nil {
			return err
		}
		out = ReceivableStats{
			TotalMinted: counters.TotalMinted,
			TotalActive: counters.TotalActive,
			Paused:      tx.Registry.Paused(),
		}
		return nil
	})
	return out, err
}

func (a *protocolAdapter) Deposit(ctx context.Context, depositor [20]byte, amount *big.Int) (*big.Int, error) {
	var shares *big.Int
	err := a.execute(ctx, "deposit", func(tx *core.Tx) error {
		minted, err := tx.Vault.Deposit(ctx, depositor, amount)
		shares = minted
		return err
	})
	return shares, err
}

func (a *protocolAdapter) Withdraw(ctx context.Context, depositor [20]byte, shares *big.Int) (*big.Int, error) {
	var amount *big.Int
	err := a.execute(ctx, "withdraw", func(tx *core.Tx) error {
		paid, err := tx.Vault.Withdraw(ctx, depositor, shares)
		amount = paid
		return err
	})
	return amount, err
}

func (a *protocolAdapter) WithdrawReserves(ctx context.Context, recipient [20]byte, amount *big.Int) error {
	return a.execute(ctx, "withdraw_reserves", func(tx *core.Tx) error {
		return tx.Vault.WithdrawReserves(ctx, recipient, amount)
	})
}

func (a *protocolAdapter) GetVault(ctx context.Context) (VaultSnapshot, error) {
	var out VaultSnapshot
	err := a.view(ctx, func(tx *core.Tx) error {
		st, err := tx.Vault.State()
		if err != nil {
			return err
		}
		utilization, err := tx.Vault.Utilization()
		if err != nil {
			return err
		}
		out = VaultSnapshot{
			State:              st,
			TotalAssets:        st.TotalAssets(),
			AvailableLiquidity: st.AvailableLiquidity(),
			UtilizationBps:     utilization,
			Paused:             tx.State.IsPaused(vault.ModuleName),
		}
		return nil
	})
	return out, err
}

func (a *protocolAdapter) GetPosition(ctx context.Context, depositor [20]byte) (Position, error) {
	var out Position
	err := a.view(ctx, func(tx *core.Tx) error {
		pos, err := tx.Vault.Position(depositor)
		if err != nil {
			return err
		}
		if pos == nil {
			return ErrNotFound
		}
		value, err := tx.Vault.SharesValue(pos.Shares)
		if err != nil {
			return err
		}
		out = Position{Position: pos, Value: value}
		return nil
	})
	return out, err
}

func (a *protocolAdapter) Borrow(ctx context.Context, borrower [20]byte, receivableIDs []uint64, amount *big.Int, duration uint64) (*lending.Loan, error) {
	var loan *lending.Loan
	err := a.execute(ctx, "borrow", func(tx *core.Tx) error {
		id, err := tx.Engine.Borrow(ctx, borrower, receivableIDs, amount, duration)
		if err != nil {
			return err
		}
		loan, err = tx.Engine.Loan(id)
		return err
	})
	return loan, err
}

func (a *protocolAdapter) Repay(ctx context.Context, borrower [20]byte, loanID uint64, amount *big.Int) (*big.Int, error) {
	var remaining *big.Int
	err := a.execute(ctx, "repay", func(tx *core.Tx) error {
		left, err := tx.Engine.Repay(ctx, borrower, loanID, amount)
		remaining = left
		return err
	})
	return remaining, err
}

func (a *protocolAdapter) Liquidate(ctx context.Context, liquidator [20]byte, loanID uint64) (*lending.Liquidation, error) {
	var result *lending.Liquidation
	err := a.execute(ctx, "liquidate", func(tx *core.Tx) error {
		liq, err := tx.Engine.Liquidate(ctx, liquidator, loanID)
		result = liq
		return err
	})
	return result, err
}

func (a *protocolAdapter) AccrueInterest(ctx context.Context, loanID uint64) (*big.Int, error) {
	var accrued *big.Int
	err := a.execute(ctx, "accrue_interest", func(tx *core.Tx) error {
		total, err := tx.Engine.AccrueInterest(ctx, loanID)
		accrued = total
		return err
	})
	return accrued, err
}

func (a *protocolAdapter) GetLoan(ctx context.Context, loanID uint64) (*lending.Loan, error) {
	var out *lending.Loan
	err := a.view(ctx, func(tx *core.Tx) error {
		loan, err := tx.Engine.Loan(loanID)
		out = loan
		return err
	})
	return out, err
}

func (a *protocolAdapter) GetHealth(ctx context.Context, loanID uint64) (*lending.Health, error) {
	var out *lending.Health
	err := a.view(ctx, func(tx *core.Tx) error {
		health, err := tx.Engine.Health(loanID)
		out = health
		return err
	})
	return out, err
}

func (a *protocolAdapter) BorrowerLoans(ctx context.Context, borrower [20]byte) ([]uint64, error) {
	var out []uint64
	err := a.view(ctx, func(tx *core.Tx) error {
		ids, err := tx.Engine.BorrowerLoans(borrower)
		out = ids
		return err
	})
	return out, err
}

func (a *protocolAdapter) GetConfig(ctx context.Context) (lending.Config, error) {
	var out lending.Config
	err := a.view(ctx, func(tx *core.Tx) error {
		cfg, err := tx.Engine.Config()
		out = cfg
		return err
	})
	return out, err
}

func (a *protocolAdapter) SetConfig(ctx context.Context, cfg lending.Config) error {
	return a.execute(ctx, "set_config", func(tx *core.Tx) error {
		return tx.Engine.SetConfig(ctx, cfg)
	})
}

func (a *protocolAdapter) SetPaused(ctx context.Context, module string, paused bool) error {
	module = strings.ToLower(strings.TrimSpace(module))
	op := "unpause_" + module
	if paused {
		op = "pause_" + module
	}
	var toggle func(*core.Tx) error
	switch module {
	case receivables.ModuleName:
		toggle = func(tx *core.Tx) error {
			if paused {
				return tx.Registry.Pause(ctx)
			}
			return tx.Registry.Unpause(ctx)
		}
	case vault.ModuleName:
		toggle = func(tx *core.Tx) error {
			if paused {
				return tx.Vault.Pause(ctx)
			}
			return tx.Vault.Unpause(ctx)
		}
	case lending.ModuleName:
		toggle = func(tx *core.Tx) error {
			if paused {
				return tx.Engine.Pause(ctx)
			}
			return tx.Engine.Unpause(ctx)
		}
	default:
		return fmt.Errorf("unknown module %q: %w", module, ErrInvalidArgument)
	}
	if err := a.execute(ctx, op, toggle); err != nil {
		return err
	}
	a.metrics.SetPause(module, paused)
	return nil
}

var errorClasses = []struct {
	target error
	causes []error
}{
	{ErrPaused, []error{nativecommon.ErrModulePaused}},
	{ErrForbidden, []error{
		nativecommon.ErrNotAuthorized,
		auth.ErrSignerMismatch,
		receivables.ErrNotVerifier,
		receivables.ErrNotOwner,
		receivables.ErrNotBorrowEngine,
		vault.ErrNotBorrowEngine,
		lending.ErrNotBorrower,
	}},
	{ErrNotFound, []error{
		receivables.ErrReceivableNotFound,
		lending.ErrLoanNotFound,
		nativecommon.ErrNotInitialized,
	}},
	{ErrConflict, []error{
		receivables.ErrInvalidStatus,
		receivables.ErrTransferNotAllowed,
		lending.ErrInvalidStatus,
		lending.ErrReceivableNotActive,
		nativecommon.ErrAlreadyInitialized,
		core.ErrGenesisApplied,
	}},
	{ErrInvalidArgument, []error{
		nativecommon.ErrZeroAmount,
		receivables.ErrInvalidFaceValue,
		receivables.ErrInvalidMaturityDate,
		receivables.ErrInvalidCurrency,
		receivables.ErrInvalidAddress,
		vault.ErrInvalidParams,
		vault.ErrInvalidAddress,
		lending.ErrInvalidDuration,
		lending.ErrDuplicateReceivable,
		lending.ErrInvalidConfig,
		lending.ErrInvalidAddress,
		bank.ErrInvalidAsset,
	}},
	{ErrRejected, []error{
		lending.ErrLTVExceeded,
		lending.ErrInsufficientCollateral,
		lending.ErrNotLiquidatable,
		lending.ErrReceivableNotOwned,
		receivables.ErrNotMatured,
		vault.ErrInsufficientDeposit,
		vault.ErrInsufficientShares,
		vault.ErrInsufficientLiquidity,
		vault.ErrMaxUtilizationExceeded,
		bank.ErrInsufficientBalance,
		nativecommon.ErrOverflow,
	}},
}

// translateError classifies err into one of the service sentinels while
// keeping the protocol message for the response body.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, class := range []error{ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrInvalidArgument, ErrRejected, ErrPaused, ErrInternal} {
		if errors.Is(err, class) {
			return err
		}
	}
	for _, class := range errorClasses {
		for _, cause := range class.causes {
			if errors.Is(err, cause) {
				return fmt.Errorf("%w: %s", class.target, err.Error())
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrInternal, err.Error())
}
