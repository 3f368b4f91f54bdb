package lending

import (
	"context"
	"fmt"
	"math/big"

	"nexum/core/auth"
	"nexum/core/events"
	nativecommon "nexum/native/common"
	"nexum/native/receivables"
)

const moduleName = "lending"

// ModuleName is the pause-registry key guarding the borrow engine.
const ModuleName = moduleName

type engineState interface {
	nativecommon.PauseView
	SetPaused(module string, paused bool) error
	LendingSettings() (*Settings, bool, error)
	PutLendingSettings(*Settings) error
	LendingCounters() (*Counters, error)
	PutLendingCounters(*Counters) error
	GetLoan(id uint64) (*Loan, bool, error)
	PutLoan(*Loan) error
	BorrowerLoans(borrower [20]byte) ([]uint64, error)
	PutBorrowerLoans(borrower [20]byte, ids []uint64) error
}

// collateralRegistry is the subset of the receivable registry the engine
// drives. Mutating calls are made under the engine's own identity.
type collateralRegistry interface {
	Receivable(id uint64) (*receivables.Receivable, error)
	Lock(ctx context.Context, id uint64) error
	Unlock(ctx context.Context, id uint64) error
	Transfer(ctx context.Context, id uint64, from, to [20]byte) error
}

// liquidityVault is the subset of the lending vault the engine drives.
type liquidityVault interface {
	Disburse(ctx context.Context, borrower [20]byte, amount *big.Int) error
	Repay(ctx context.Context, borrower [20]byte, principal, interest *big.Int) error
	LiquidationReceive(ctx context.Context, recovered, shortfall *big.Int) error
}

// Engine originates, services, and liquidates receivable-backed loans.
type Engine struct {
	state    engineState
	registry collateralRegistry
	vault    liquidityVault
	auth     auth.Authorizer
	emitter  events.Emitter
	nowFn    func() uint64
	self     [20]byte
}

// NewEngine constructs an engine acting under identity self when it calls
// the registry and the vault.
func NewEngine(self [20]byte) *Engine {
	return &Engine{self: self, auth: auth.ContextAuthorizer{}, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to its persistence backend.
func (e *Engine) SetState(state engineState) {
	if e == nil {
		return
	}
	e.state = state
}

// SetRegistry configures the receivable registry holding collateral.
func (e *Engine) SetRegistry(registry collateralRegistry) {
	if e == nil {
		return
	}
	e.registry = registry
}

// SetVault configures the liquidity source.
func (e *Engine) SetVault(vault liquidityVault) {
	if e == nil {
		return
	}
	e.vault = vault
}

// SetAuthorizer replaces the capability checker.
func (e *Engine) SetAuthorizer(a auth.Authorizer) {
	if e == nil {
		return
	}
	if a == nil {
		a = auth.ContextAuthorizer{}
	}
	e.auth = a
}

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNowFunc overrides the timestamp source.
func (e *Engine) SetNowFunc(now func() uint64) {
	if e == nil {
		return
	}
	e.nowFn = now
}

// Identity returns the principal the engine acts under.
func (e *Engine) Identity() [20]byte {
	if e == nil {
		return [20]byte{}
	}
	return e.self
}

func (e *Engine) now() uint64 {
	if e.nowFn != nil {
		return e.nowFn()
	}
	return 0
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if e.vault == nil {
		return errNilVault
	}
	return nil
}

func (e *Engine) asEngine(ctx context.Context) context.Context {
	return auth.WithPrincipals(ctx, e.self)
}

// Initialize records the admin and the starting configuration. It succeeds
// once.
func (e *Engine) Initialize(ctx context.Context, admin [20]byte, cfg Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if admin == ([20]byte{}) {
		return ErrInvalidAddress
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, ok, err := e.state.LendingSettings(); err != nil {
		return err
	} else if ok {
		return nativecommon.ErrAlreadyInitialized
	}
	if err := e.auth.Require(ctx, admin); err != nil {
		return err
	}
	if err := e.state.PutLendingSettings(&Settings{Admin: admin, Config: cfg}); err != nil {
		return err
	}
	return e.state.PutLendingCounters(&Counters{NextLoanID: 1, TotalBorrowed: big.NewInt(0)})
}

func (e *Engine) settings() (*Settings, error) {
	settings, ok, err := e.state.LendingSettings()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nativecommon.ErrNotInitialized
	}
	return settings, nil
}

func (e *Engine) counters() (*Counters, error) {
	counters, err := e.state.LendingCounters()
	if err != nil {
		return nil, err
	}
	if counters == nil {
		counters = &Counters{}
	}
	if counters.NextLoanID == 0 {
		counters.NextLoanID = 1
	}
	if counters.TotalBorrowed == nil {
		counters.TotalBorrowed = big.NewInt(0)
	}
	return counters, nil
}

func (e *Engine) load(id uint64) (*Loan, error) {
	loan, ok, err := e.state.GetLoan(id)
	if err != nil {
		return nil, err
	}
	if !ok || loan == nil {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}

func (e *Engine) loadActive(id uint64) (*Loan, error) {
	loan, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanActive {
		return nil, fmt.Errorf("%w: loan %d is %s", ErrInvalidStatus, id, loan.Status)
	}
	return loan, nil
}

func (e *Engine) requireAdmin(ctx context.Context) (*Settings, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	settings, err := e.settings()
	if err != nil {
		return nil, err
	}
	if err := e.auth.Require(ctx, settings.Admin); err != nil {
		return nil, err
	}
	return settings, nil
}

// Borrow validates and values the pledged receivables, locks them, and
// disburses amount from the vault. Validation completes before any lock is
// taken so a rejected request leaves every receivable untouched.
func (e *Engine) Borrow(ctx context.Context, borrower [20]byte, receivableIDs []uint64, amount *big.Int, duration uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.state, moduleName); err != nil {
		return 0, err
	}
	if !nativecommon.ValidAmount(amount) {
		return 0, nativecommon.ErrZeroAmount
	}
	if len(receivableIDs) == 0 {
		return 0, fmt.Errorf("%w: no receivables pledged", ErrInsufficientCollateral)
	}
	seen := make(map[uint64]struct{}, len(receivableIDs))
	for _, id := range receivableIDs {
		if _, dup := seen[id]; dup {
			return 0, fmt.Errorf("%w: %d", ErrDuplicateReceivable, id)
		}
		seen[id] = struct{}{}
	}
	if err := e.auth.Require(ctx, borrower); err != nil {
		return 0, err
	}
	settings, err := e.settings()
	if err != nil {
		return 0, err
	}
	cfg := settings.Config
	if duration == 0 || duration > cfg.MaxLoanDuration {
		return 0, fmt.Errorf("%w: %d seconds", ErrInvalidDuration, duration)
	}

	total := big.NewInt(0)
	for _, id := range receivableIDs {
		rec, err := e.registry.Receivable(id)
		if err != nil {
			return 0, err
		}
		if rec.Owner != borrower {
			return 0, fmt.Errorf("%w: %d", ErrReceivableNotOwned, id)
		}
		if rec.Status != receivables.StatusActive {
			return 0, fmt.Errorf("%w: %d is %s", ErrReceivableNotActive, id, rec.Status)
		}
		value, err := collateralValue(rec.FaceValue, rec.RiskScore, cfg.RiskDiscountFactor)
		if err != nil {
			return 0, err
		}
		if total, err = nativecommon.CheckedAdd(total, value); err != nil {
			return 0, err
		}
	}
	if total.Sign() == 0 {
		return 0, fmt.Errorf("%w: collateral valued at zero", ErrInsufficientCollateral)
	}
	maxBorrow, err := nativecommon.MulDivBps(total, cfg.MaxLTV)
	if err != nil {
		return 0, err
	}
	if amount.Cmp(maxBorrow) > 0 {
		return 0, fmt.Errorf("%w: requested %s, max %s", ErrLTVExceeded, amount, maxBorrow)
	}

	now := e.now()
	if duration > ^uint64(0)-now {
		return 0, nativecommon.ErrOverflow
	}
	engineCtx := e.asEngine(ctx)
	for _, id := range receivableIDs {
		if err := e.registry.Lock(engineCtx, id); err != nil {
			return 0, err
		}
	}
	if err := e.vault.Disburse(engineCtx, borrower, amount); err != nil {
		return 0, err
	}

	counters, err := e.counters()
	if err != nil {
		return 0, err
	}
	borrowed, err := nativecommon.CheckedAdd(counters.TotalBorrowed, amount)
	if err != nil {
		return 0, err
	}
	loan := &Loan{
		ID:                 counters.NextLoanID,
		Borrower:           borrower,
		ReceivableIDs:      append([]uint64(nil), receivableIDs...),
		CollateralValue:    total,
		Principal:          new(big.Int).Set(amount),
		InterestRate:       cfg.BaseInterestRate,
		AccruedInterest:    big.NewInt(0),
		BorrowedAt:         now,
		LastInterestUpdate: now,
		DueDate:            now + duration,
		Status:             LoanActive,
	}
	if err := e.state.PutLoan(loan); err != nil {
		return 0, err
	}
	ids, err := e.state.BorrowerLoans(borrower)
	if err != nil {
		return 0, err
	}
	if err := e.state.PutBorrowerLoans(borrower, append(ids, loan.ID)); err != nil {
		return 0, err
	}
	counters.NextLoanID++
	counters.TotalLoans++
	counters.TotalBorrowed = borrowed
	if err := e.state.PutLendingCounters(counters); err != nil {
		return 0, err
	}
	e.emit(events.LoanBorrowed{
		LoanID:          loan.ID,
		Borrower:        borrower,
		ReceivableIDs:   loan.ReceivableIDs,
		Principal:       loan.Principal,
		CollateralValue: loan.CollateralValue,
		InterestRate:    loan.InterestRate,
		DueDate:         loan.DueDate,
	})
	return loan.ID, nil
}

// Repay accrues interest, applies amount to interest first and principal
// second, and returns the outstanding debt afterwards. Overpayment is
// clamped to the debt. Collateral is released once the loan is cleared.
func (e *Engine) Repay(ctx context.Context, borrower [20]byte, loanID uint64, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.state, moduleName); err != nil {
		return nil, err
	}
	if !nativecommon.ValidAmount(amount) {
		return nil, nativecommon.ErrZeroAmount
	}
	if err := e.auth.Require(ctx, borrower); err != nil {
		return nil, err
	}
	loan, err := e.loadActive(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Borrower != borrower {
		return nil, ErrNotBorrower
	}
	if _, err := accrue(loan, e.now()); err != nil {
		return nil, err
	}
	owed, err := loan.Debt()
	if err != nil {
		return nil, err
	}
	payment := nativecommon.Min(amount, owed)
	interestPaid := nativecommon.Min(payment, loan.AccruedInterest)
	principalPaid := new(big.Int).Sub(payment, interestPaid)

	engineCtx := e.asEngine(ctx)
	if payment.Sign() > 0 {
		if err := e.vault.Repay(engineCtx, borrower, principalPaid, interestPaid); err != nil {
			return nil, err
		}
	}
	loan.AccruedInterest = new(big.Int).Sub(loan.AccruedInterest, interestPaid)
	loan.Principal = new(big.Int).Sub(loan.Principal, principalPaid)
	remaining, err := loan.Debt()
	if err != nil {
		return nil, err
	}
	closed := remaining.Sign() == 0
	if closed {
		loan.Status = LoanRepaid
		if _, err := e.releaseCollateral(engineCtx, loan); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	e.emit(events.LoanRepaid{
		LoanID:    loan.ID,
		Borrower:  borrower,
		Principal: principalPaid,
		Interest:  interestPaid,
		Remaining: remaining,
		Closed:    closed,
	})
	return remaining, nil
}

// releaseCollateral unlocks every still-pledged receivable of the loan and
// returns the ids it released. Receivables that were closed while pledged
// stay where they are.
func (e *Engine) releaseCollateral(ctx context.Context, loan *Loan) ([]uint64, error) {
	released := make([]uint64, 0, len(loan.ReceivableIDs))
	for _, id := range loan.ReceivableIDs {
		rec, err := e.registry.Receivable(id)
		if err != nil {
			return nil, err
		}
		switch {
		case rec.Status == receivables.StatusCollateralized:
			if err := e.registry.Unlock(ctx, id); err != nil {
				return nil, err
			}
			released = append(released, id)
		case rec.Status.Terminal():
			continue
		default:
			return nil, fmt.Errorf("%w: receivable %d is %s", ErrInvalidStatus, id, rec.Status)
		}
	}
	return released, nil
}

// Liquidate seizes the collateral of an unhealthy or overdue loan for the
// liquidator and books the recovery against the vault. The threshold and
// penalty are read from the live configuration.
func (e *Engine) Liquidate(ctx context.Context, liquidator [20]byte, loanID uint64) (*Liquidation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.state, moduleName); err != nil {
		return nil, err
	}
	if liquidator == ([20]byte{}) {
		return nil, ErrInvalidAddress
	}
	if err := e.auth.Require(ctx, liquidator); err != nil {
		return nil, err
	}
	loan, err := e.loadActive(loanID)
	if err != nil {
		return nil, err
	}
	settings, err := e.settings()
	if err != nil {
		return nil, err
	}
	cfg := settings.Config
	now := e.now()
	if _, err := accrue(loan, now); err != nil {
		return nil, err
	}
	debt, err := loan.Debt()
	if err != nil {
		return nil, err
	}
	ltv, err := nativecommon.RatioBps(debt, loan.CollateralValue)
	if err != nil {
		return nil, err
	}
	overdue := now > loan.DueDate
	if ltv.Cmp(new(big.Int).SetUint64(cfg.LiquidationThreshold)) <= 0 && !overdue {
		return nil, fmt.Errorf("%w: ltv %s bps", ErrNotLiquidatable, ltv)
	}

	penalty, err := nativecommon.MulDivBps(debt, cfg.LiquidationPenalty)
	if err != nil {
		return nil, err
	}
	liquidationValue, err := nativecommon.CheckedAdd(debt, penalty)
	if err != nil {
		return nil, err
	}
	recovered := nativecommon.Min(loan.CollateralValue, liquidationValue)
	shortfall := nativecommon.SaturatingSub(debt, recovered)

	engineCtx := e.asEngine(ctx)
	seized, err := e.releaseCollateral(engineCtx, loan)
	if err != nil {
		return nil, err
	}
	for _, id := range seized {
		if err := e.registry.Transfer(engineCtx, id, loan.Borrower, liquidator); err != nil {
			return nil, err
		}
	}
	if err := e.vault.LiquidationReceive(engineCtx, recovered, shortfall); err != nil {
		return nil, err
	}
	loan.Status = LoanLiquidated
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	result := &Liquidation{
		LoanID:     loan.ID,
		Liquidator: liquidator,
		Debt:       debt,
		Penalty:    penalty,
		Recovered:  recovered,
		Shortfall:  shortfall,
		Seized:     seized,
	}
	e.emit(events.LoanLiquidated{
		LoanID:     loan.ID,
		Borrower:   loan.Borrower,
		Liquidator: liquidator,
		Debt:       debt,
		Penalty:    penalty,
		Recovered:  recovered,
		Shortfall:  shortfall,
	})
	return result, nil
}

// AccrueInterest brings an active loan's accrued interest up to date and
// returns the new accrued total. Anyone may call it.
func (e *Engine) AccrueInterest(ctx context.Context, loanID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.state, moduleName); err != nil {
		return nil, err
	}
	loan, err := e.loadActive(loanID)
	if err != nil {
		return nil, err
	}
	interest, err := accrue(loan, e.now())
	if err != nil {
		return nil, err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	e.emit(events.LoanAccrued{LoanID: loan.ID, Interest: interest, Accrued: loan.AccruedInterest})
	return nativecommon.CopyAmount(loan.AccruedInterest), nil
}

// SetConfig replaces the live configuration. Existing loans keep their rate
// and collateral valuation; the threshold and penalty apply immediately.
func (e *Engine) SetConfig(ctx context.Context, cfg Config) error {
	if err := nativecommon.Guard(e.state, moduleName); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	settings, err := e.requireAdmin(ctx)
	if err != nil {
		return err
	}
	settings.Config = cfg
	return e.state.PutLendingSettings(settings)
}

// Pause halts every mutating entry point of the engine except Unpause.
func (e *Engine) Pause(ctx context.Context) error { return e.setPaused(ctx, true) }

// Unpause resumes the engine.
func (e *Engine) Unpause(ctx context.Context) error { return e.setPaused(ctx, false) }

func (e *Engine) setPaused(ctx context.Context, paused bool) error {
	if _, err := e.requireAdmin(ctx); err != nil {
		return err
	}
	if err := e.state.SetPaused(moduleName, paused); err != nil {
		return err
	}
	e.emit(events.ModulePause{Module: moduleName, Paused: paused})
	return nil
}

// Loan returns a snapshot of the stored loan.
func (e *Engine) Loan(id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

// BorrowerLoans lists the loan identifiers opened by borrower.
func (e *Engine) BorrowerLoans(borrower [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.BorrowerLoans(borrower)
}

// Health projects the loan's debt and LTV at the current time without
// mutating state.
func (e *Engine) Health(id uint64) (*Health, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, err := e.load(id)
	if err != nil {
		return nil, err
	}
	now := e.now()
	health := &Health{
		LoanID:          loan.ID,
		CollateralValue: nativecommon.CopyAmount(loan.CollateralValue),
	}
	if loan.Status != LoanActive {
		health.Debt = big.NewInt(0)
		health.LTV = big.NewInt(0)
		return health, nil
	}
	if _, err := accrue(loan, now); err != nil {
		return nil, err
	}
	if health.Debt, err = loan.Debt(); err != nil {
		return nil, err
	}
	if health.LTV, err = nativecommon.RatioBps(health.Debt, loan.CollateralValue); err != nil {
		return nil, err
	}
	settings, err := e.settings()
	if err != nil {
		return nil, err
	}
	health.Overdue = now > loan.DueDate
	health.Liquidatable = health.Overdue || health.LTV.Cmp(new(big.Int).SetUint64(settings.Config.LiquidationThreshold)) > 0
	return health, nil
}

// LTV returns the projected debt-to-collateral ratio in basis points.
func (e *Engine) LTV(id uint64) (*big.Int, error) {
	health, err := e.Health(id)
	if err != nil {
		return nil, err
	}
	return health.LTV, nil
}

// IsLiquidatable reports whether Liquidate would currently accept the loan.
func (e *Engine) IsLiquidatable(id uint64) (bool, error) {
	health, err := e.Health(id)
	if err != nil {
		return false, err
	}
	return health.Liquidatable, nil
}

// Config returns the live configuration.
func (e *Engine) Config() (Config, error) {
	if e == nil || e.state == nil {
		return Config{}, errNilState
	}
	settings, err := e.settings()
	if err != nil {
		return Config{}, err
	}
	return settings.Config, nil
}

// Counters returns the engine totals.
func (e *Engine) Counters() (*Counters, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	counters, err := e.counters()
	if err != nil {
		return nil, err
	}
	return &Counters{
		NextLoanID:    counters.NextLoanID,
		TotalLoans:    counters.TotalLoans,
		TotalBorrowed: nativecommon.CopyAmount(counters.TotalBorrowed),
	}, nil
}

// Paused reports whether the engine is halted.
func (e *Engine) Paused() bool {
	if e == nil || e.state == nil {
		return false
	}
	return e.state.IsPaused(moduleName)
}

// TotalLoans returns the number of loans ever originated.
func (e *Engine) TotalLoans() (uint64, error) {
	counters, err := e.Counters()
	if err != nil {
		return 0, err
	}
	return counters.TotalLoans, nil
}

// TotalBorrowed returns the cumulative principal originated.
func (e *Engine) TotalBorrowed() (*big.Int, error) {
	counters, err := e.Counters()
	if err != nil {
		return nil, err
	}
	return counters.TotalBorrowed, nil
}
