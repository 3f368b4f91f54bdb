package lending

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"nexum/core/auth"
	"nexum/core/events"
	nativecommon "nexum/native/common"
	"nexum/native/receivables"
)

type mockEngineState struct {
	paused   map[string]bool
	settings *Settings
	counters *Counters
	loans    map[uint64]*Loan
	byOwner  map[[20]byte][]uint64
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		paused:  make(map[string]bool),
		loans:   make(map[uint64]*Loan),
		byOwner: make(map[[20]byte][]uint64),
	}
}

func (m *mockEngineState) IsPaused(module string) bool { return m.paused[module] }

func (m *mockEngineState) SetPaused(module string, paused bool) error {
	m.paused[module] = paused
	return nil
}

func (m *mockEngineState) LendingSettings() (*Settings, bool, error) {
	if m.settings == nil {
		return nil, false, nil
	}
	clone := *m.settings
	return &clone, true, nil
}

func (m *mockEngineState) PutLendingSettings(s *Settings) error {
	clone := *s
	m.settings = &clone
	return nil
}

func (m *mockEngineState) LendingCounters() (*Counters, error) {
	if m.counters == nil {
		return nil, nil
	}
	clone := *m.counters
	clone.TotalBorrowed = nativecommon.CopyAmount(m.counters.TotalBorrowed)
	return &clone, nil
}

func (m *mockEngineState) PutLendingCounters(c *Counters) error {
	clone := *c
	clone.TotalBorrowed = nativecommon.CopyAmount(c.TotalBorrowed)
	m.counters = &clone
	return nil
}

func (m *mockEngineState) GetLoan(id uint64) (*Loan, bool, error) {
	loan, ok := m.loans[id]
	if !ok {
		return nil, false, nil
	}
	return loan.Clone(), true, nil
}

func (m *mockEngineState) PutLoan(loan *Loan) error {
	m.loans[loan.ID] = loan.Clone()
	return nil
}

func (m *mockEngineState) BorrowerLoans(borrower [20]byte) ([]uint64, error) {
	return append([]uint64(nil), m.byOwner[borrower]...), nil
}

func (m *mockEngineState) PutBorrowerLoans(borrower [20]byte, ids []uint64) error {
	m.byOwner[borrower] = append([]uint64(nil), ids...)
	return nil
}

type stubRegistry struct {
	engine  [20]byte
	records map[uint64]*receivables.Receivable
	lockErr map[uint64]error
}

func (s *stubRegistry) Receivable(id uint64) (*receivables.Receivable, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, receivables.ErrReceivableNotFound
	}
	return rec.Clone(), nil
}

func (s *stubRegistry) move(ctx context.Context, id uint64, from, to receivables.Status) error {
	if !auth.Has(ctx, s.engine) {
		return nativecommon.ErrNotAuthorized
	}
	rec, ok := s.records[id]
	if !ok {
		return receivables.ErrReceivableNotFound
	}
	if rec.Status != from {
		return receivables.ErrInvalidStatus
	}
	rec.Status = to
	return nil
}

func (s *stubRegistry) Lock(ctx context.Context, id uint64) error {
	if err := s.lockErr[id]; err != nil {
		return err
	}
	return s.move(ctx, id, receivables.StatusActive, receivables.StatusCollateralized)
}

func (s *stubRegistry) Unlock(ctx context.Context, id uint64) error {
	return s.move(ctx, id, receivables.StatusCollateralized, receivables.StatusActive)
}

func (s *stubRegistry) Transfer(ctx context.Context, id uint64, from, to [20]byte) error {
	if !auth.Has(ctx, s.engine) {
		return nativecommon.ErrNotAuthorized
	}
	rec := s.records[id]
	if rec == nil || rec.Owner != from || rec.Status != receivables.StatusActive {
		return receivables.ErrTransferNotAllowed
	}
	rec.Owner = to
	return nil
}

var errNoLiquidity = errors.New("stub vault: insufficient liquidity")

type stubVault struct {
	engine    [20]byte
	liquidity *big.Int
	disbursed *big.Int
	principal *big.Int
	interest  *big.Int
	recovered *big.Int
	shortfall *big.Int
}

func (v *stubVault) Disburse(ctx context.Context, borrower [20]byte, amount *big.Int) error {
	if !auth.Has(ctx, v.engine) {
		return nativecommon.ErrNotAuthorized
	}
	if amount.Cmp(v.liquidity) > 0 {
		return errNoLiquidity
	}
	v.liquidity.Sub(v.liquidity, amount)
	v.disbursed.Add(v.disbursed, amount)
	return nil
}

func (v *stubVault) Repay(ctx context.Context, borrower [20]byte, principal, interest *big.Int) error {
	if !auth.Has(ctx, v.engine) || !auth.Has(ctx, borrower) {
		return nativecommon.ErrNotAuthorized
	}
	v.principal.Add(v.principal, principal)
	v.interest.Add(v.interest, interest)
	return nil
}

func (v *stubVault) LiquidationReceive(ctx context.Context, recovered, shortfall *big.Int) error {
	if !auth.Has(ctx, v.engine) {
		return nativecommon.ErrNotAuthorized
	}
	v.recovered.Add(v.recovered, recovered)
	v.shortfall.Add(v.shortfall, shortfall)
	return nil
}

func makeAddress(prefix, suffix byte) [20]byte {
	var addr [20]byte
	addr[0] = prefix
	addr[19] = suffix
	return addr
}

var (
	testAdmin      = makeAddress(0xaa, 1)
	testEngine     = makeAddress(0xcc, 2)
	testBorrower   = makeAddress(0x03, 3)
	testLiquidator = makeAddress(0x04, 4)
	testStranger   = makeAddress(0x05, 5)
)

const testStart uint64 = 1_700_000_000

type engineFixture struct {
	engine   *Engine
	state    *mockEngineState
	registry *stubRegistry
	vault    *stubVault
	events   *events.Buffer
	now      uint64
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		state:    newMockEngineState(),
		registry: &stubRegistry{engine: testEngine, records: make(map[uint64]*receivables.Receivable), lockErr: make(map[uint64]error)},
		vault: &stubVault{
			engine:    testEngine,
			liquidity: big.NewInt(100_000_000),
			disbursed: big.NewInt(0),
			principal: big.NewInt(0),
			interest:  big.NewInt(0),
			recovered: big.NewInt(0),
			shortfall: big.NewInt(0),
		},
		events: events.NewBuffer(),
		now:    testStart,
	}
	f.engine = NewEngine(testEngine)
	f.engine.SetState(f.state)
	f.engine.SetRegistry(f.registry)
	f.engine.SetVault(f.vault)
	f.engine.SetEmitter(f.events)
	f.engine.SetNowFunc(func() uint64 { return f.now })
	if err := f.engine.Initialize(ctxFor(testAdmin), testAdmin, DefaultConfig()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return f
}

func ctxFor(principals ...[20]byte) context.Context {
	return auth.WithPrincipals(context.Background(), principals...)
}

func (f *engineFixture) addReceivable(id uint64, owner [20]byte, face int64, risk uint64) {
	f.registry.records[id] = &receivables.Receivable{
		ID:           id,
		Owner:        owner,
		FaceValue:    big.NewInt(face),
		Currency:     "USDC",
		MaturityDate: testStart + SecondsPerYear,
		Status:       receivables.StatusActive,
		RiskScore:    risk,
	}
}

func (f *engineFixture) borrow(t *testing.T, ids []uint64, amount int64, duration uint64) uint64 {
	t.Helper()
	loanID, err := f.engine.Borrow(ctxFor(testBorrower), testBorrower, ids, big.NewInt(amount), duration)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	return loanID
}

// seedLoan stores an active loan directly, pledging the given receivables.
func (f *engineFixture) seedLoan(id uint64, principal, collateral int64, due uint64, receivableIDs ...uint64) {
	for _, rid := range receivableIDs {
		f.addReceivable(rid, testBorrower, collateral, 0)
		f.registry.records[rid].Status = receivables.StatusCollateralized
	}
	f.state.loans[id] = &Loan{
		ID:                 id,
		Borrower:           testBorrower,
		ReceivableIDs:      receivableIDs,
		CollateralValue:    big.NewInt(collateral),
		Principal:          big.NewInt(principal),
		InterestRate:       1_000,
		AccruedInterest:    big.NewInt(0),
		BorrowedAt:         f.now,
		LastInterestUpdate: f.now,
		DueDate:            due,
		Status:             LoanActive,
	}
}

func TestSimpleInterestFullYear(t *testing.T) {
	got, err := simpleInterest(big.NewInt(1_000_000), 1_000, SecondsPerYear)
	if err != nil {
		t.Fatalf("interest: %v", err)
	}
	if got.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("expected 100000 interest, got %s", got)
	}
}

func TestSimpleInterestRoundsDown(t *testing.T) {
	got, err := simpleInterest(big.NewInt(1_000_000), 1_000, 1)
	if err != nil {
		t.Fatalf("interest: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("expected sub-unit interest to floor to zero, got %s", got)
	}
}

func TestAccrueInterestOneYear(t *testing.T) {
	f := newEngineFixture(t)
	f.addReceivable(1, testBorrower, 2_000_000, 0)
	loanID := f.borrow(t, []uint64{1}, 1_000_000, SecondsPerYear)

	f.now += SecondsPerYear
	accrued, err := f.engine.AccrueInterest(context.Background(), loanID)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if accrued.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("expected 100000 accrued, got %s", accrued)
	}
	loan := f.state.loans[loanID]
	if loan.LastInterestUpdate != f.now {
		t.Fatalf("expected last update %d, got %d", f.now, loan.LastInterestUpdate)
	}
	if loan.Principal.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("principal must not change on accrual, got %s", loan.Principal)
	}
}

func TestAccrueInterestIsNotCompounded(t *testing.T) {
	f := newEngineFixture(t)
	f.addReceivable(1, testBorrower, 2_000_000, 0)
	loanID := f.borrow(t, []uint64{1}, 1_000_000, SecondsPerYear)

	f.now += SecondsPerYear / 2
	if _, err := f.engine.AccrueInterest(context.Background(), loanID); err != nil {
		t.Fatalf("first accrue: %v", err)
	}
	f.now += SecondsPerYear / 2
	accrued, err := f.engine.AccrueInterest(context.Background(), loanID)
	if err != nil {
		t.Fatalf("second accrue: %v", err)
	}
	if accrued.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("expected 100000 accrued across two halves, got %s", accrued)
	}
}

func TestAccrueInterestIgnoresBackwardsClock(t *testing.T) {
	f := newEngineFixture(t)
	f.addReceivable(1, testBorrower, 2_000_000, 0)
	loanID := f.borrow(t, []uint64{1}, 1_000_000, SecondsPerYear)

	f.now -= 100
	accrued, err := f.engine.AccrueInterest(context.Background(), loanID)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if accrued.Sign() != 0 {
		t.Fatalf("expected no interest, got %s", accrued)
	}
	if f.state.loans[loanID].LastInterestUpdate != testStart {
		t.Fatalf("last update must not move backwards")
	}
}

func TestAccrueInterestRejectsClosedLoan(t *testing.T) {
	f := newEngineFixture(t)
	f.seedLoan(7, 100, 1_000, testStart+10, 1)
	f.state.loans[7].Status = LoanRepaid
	if _, err := f.engine.AccrueInterest(context.Background(), 7); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := f.engine.AccrueInterest(context.Background(), 99); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected ErrLoanNotFound, got %v", err)
	}
}

func TestHealthProjectsWithoutMutating(t *testing.T) {
	f := newEngineFixture(t)
	f.addReceivable(1, testBorrower, 2_000_000, 0)
	loanID := f.borrow(t, []uint64{1}, 1_000_000, SecondsPerYear)

	f.now += SecondsPerYear
	health, err := f.engine.Health(loanID)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Debt.Cmp(big.NewInt(1_100_000)) != 0 {
		t.Fatalf("expected projected debt 1100000, got %s", health.Debt)
	}
	if health.LTV.Cmp(big.NewInt(5_500)) != 0 {
		t.Fatalf("expected ltv 5500, got %s", health.LTV)
	}
	if health.Liquidatable || health.Overdue {
		t.Fatalf("loan should be healthy at its due date")
	}
	if f.state.loans[loanID].AccruedInterest.Sign() != 0 {
		t.Fatalf("health must not persist accrual")
	}
}
