package vault

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"nexum/core/auth"
	"nexum/core/events"
	"nexum/native/bank"
	nativecommon "nexum/native/common"
)

type mockVaultState struct {
	paused    map[string]bool
	state     *State
	positions map[[20]byte]*Position
	balances  map[string]*big.Int
}

func newMockVaultState() *mockVaultState {
	return &mockVaultState{
		paused:    make(map[string]bool),
		positions: make(map[[20]byte]*Position),
		balances:  make(map[string]*big.Int),
	}
}

func (m *mockVaultState) IsPaused(module string) bool { return m.paused[module] }

func (m *mockVaultState) SetPaused(module string, paused bool) error {
	m.paused[module] = paused
	return nil
}

func (m *mockVaultState) VaultState() (*State, bool, error) {
	if m.state == nil {
		return nil, false, nil
	}
	return m.state.Clone(), true, nil
}

func (m *mockVaultState) PutVaultState(s *State) error {
	m.state = s.Clone()
	return nil
}

func (m *mockVaultState) VaultPosition(addr [20]byte) (*Position, bool, error) {
	pos, ok := m.positions[addr]
	if !ok {
		return nil, false, nil
	}
	return pos.Clone(), true, nil
}

func (m *mockVaultState) PutVaultPosition(addr [20]byte, pos *Position) error {
	m.positions[addr] = pos.Clone()
	return nil
}

func (m *mockVaultState) DeleteVaultPosition(addr [20]byte) error {
	delete(m.positions, addr)
	return nil
}

func (m *mockVaultState) Balance(addr [20]byte, symbol string) (*big.Int, error) {
	if v, ok := m.balances[symbol+string(addr[:])]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockVaultState) SetBalance(addr [20]byte, symbol string, amount *big.Int) error {
	m.balances[symbol+string(addr[:])] = new(big.Int).Set(amount)
	return nil
}

func makeAddress(prefix, suffix byte) [20]byte {
	var addr [20]byte
	addr[0] = prefix
	addr[19] = suffix
	return addr
}

var (
	testAdmin    = makeAddress(0xaa, 1)
	testEngine   = makeAddress(0xcc, 2)
	testVaultID  = makeAddress(0xdd, 3)
	testLP1      = makeAddress(0x01, 4)
	testLP2      = makeAddress(0x02, 5)
	testBorrower = makeAddress(0x03, 6)
)

type vaultFixture struct {
	vault  *Vault
	state  *mockVaultState
	ledger *bank.Ledger
	events *events.Buffer
}

func newVaultFixture(t *testing.T, params Params) *vaultFixture {
	t.Helper()
	f := &vaultFixture{state: newMockVaultState(), events: events.NewBuffer()}
	f.ledger = bank.NewLedger(f.state)
	f.vault = NewVault(testVaultID)
	f.vault.SetState(f.state)
	f.vault.SetLedger(f.ledger)
	f.vault.SetEmitter(f.events)
	f.vault.SetNowFunc(func() uint64 { return 1_700_000_000 })

	adminCtx := auth.WithPrincipals(context.Background(), testAdmin)
	if err := f.vault.Initialize(adminCtx, testAdmin, params); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := f.vault.SetBorrowEngine(adminCtx, testEngine); err != nil {
		t.Fatalf("set borrow engine: %v", err)
	}
	for _, holder := range [][20]byte{testLP1, testLP2, testBorrower} {
		if err := f.ledger.Mint("USDC", holder, big.NewInt(100_000_000)); err != nil {
			t.Fatalf("fund: %v", err)
		}
	}
	return f
}

func defaultParams() Params {
	return Params{BaseAsset: "usdc", ReserveFactor: 1_000, MaxUtilization: 9_000, MinDeposit: big.NewInt(1_000)}
}

func (f *vaultFixture) deposit(t *testing.T, who [20]byte, amount int64) *big.Int {
	t.Helper()
	shares, err := f.vault.Deposit(auth.WithPrincipals(context.Background(), who), who, big.NewInt(amount))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return shares
}

func engineCtx() context.Context {
	return auth.WithPrincipals(context.Background(), testEngine, testBorrower)
}

func requireAmount(t *testing.T, label string, got *big.Int, want int64) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("unexpected %s: got %v want %d", label, got, want)
	}
}

func TestFirstDepositMintsOneToOne(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	shares := f.deposit(t, testLP1, 10_000_000)
	requireAmount(t, "shares", shares, 10_000_000)

	st, _ := f.vault.State()
	requireAmount(t, "deposits", st.TotalDeposits, 10_000_000)
	requireAmount(t, "total shares", st.TotalShares, 10_000_000)
	vaultBal, _ := f.ledger.Balance("USDC", testVaultID)
	requireAmount(t, "vault balance", vaultBal, 10_000_000)
}

func TestDepositValidation(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	ctx := auth.WithPrincipals(context.Background(), testLP1)
	if _, err := f.vault.Deposit(ctx, testLP1, big.NewInt(0)); !errors.Is(err, nativecommon.ErrZeroAmount) {
		t.Fatalf("expected zero amount, got %v", err)
	}
	if _, err := f.vault.Deposit(ctx, testLP1, big.NewInt(999)); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("expected insufficient deposit, got %v", err)
	}
	if _, err := f.vault.Deposit(ctx, testLP2, big.NewInt(5_000)); !errors.Is(err, nativecommon.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
}

func TestLaterDepositorPricedAgainstTotalAssets(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	f.deposit(t, testLP1, 1_000_000)
	if err := f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(100_000)); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if err := f.vault.Repay(engineCtx(), testBorrower, big.NewInt(100_000), big.NewInt(10_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	assets, _ := f.vault.TotalAssets()
	requireAmount(t, "total assets", assets, 1_018_000)

	shares := f.deposit(t, testLP2, 509_000)
	requireAmount(t, "second depositor shares", shares, 500_000)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	shares := f.deposit(t, testLP1, 4_000)
	before, _ := f.ledger.Balance("USDC", testLP1)

	amount, err := f.vault.Withdraw(auth.WithPrincipals(context.Background(), testLP1), testLP1, shares)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	requireAmount(t, "withdrawn", amount, 4_000)
	after, _ := f.ledger.Balance("USDC", testLP1)
	requireAmount(t, "lp balance delta", new(big.Int).Sub(after, before), 4_000)
	if pos, _ := f.vault.Position(testLP1); pos != nil {
		t.Fatalf("position should be removed, got %+v", pos)
	}
}

func TestWithdrawRequiresShares(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	ctx := auth.WithPrincipals(context.Background(), testLP1)
	if _, err := f.vault.Withdraw(ctx, testLP1, big.NewInt(1)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected insufficient shares without position, got %v", err)
	}
	f.deposit(t, testLP1, 5_000)
	if _, err := f.vault.Withdraw(ctx, testLP1, big.NewInt(5_001)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected insufficient shares, got %v", err)
	}
}

func TestWithdrawLimitedByAvailableLiquidity(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	shares := f.deposit(t, testLP1, 1_000_000)
	if err := f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(500_000)); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	ctx := auth.WithPrincipals(context.Background(), testLP1)
	if _, err := f.vault.Withdraw(ctx, testLP1, shares); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	amount, err := f.vault.Withdraw(ctx, testLP1, big.NewInt(500_000))
	if err != nil {
		t.Fatalf("partial withdraw: %v", err)
	}
	requireAmount(t, "partial", amount, 500_000)
	available, _ := f.vault.AvailableLiquidity()
	requireAmount(t, "available", available, 0)
}

func TestDisburseUtilization(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	f.deposit(t, testLP1, 10_000_000)
	if err := f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(5_000_000)); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	util, _ := f.vault.Utilization()
	if util != 5_000 {
		t.Fatalf("unexpected utilization %d", util)
	}
	if err := f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(4_000_000)); err != nil {
		t.Fatalf("disburse to cap: %v", err)
	}
	if err := f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(1_000)); !errors.Is(err, ErrMaxUtilizationExceeded) {
		t.Fatalf("expected max utilization exceeded, got %v", err)
	}
	st, _ := f.vault.State()
	requireAmount(t, "borrowed", st.TotalBorrowed, 9_000_000)
}

func TestDisburseChecks(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	f.deposit(t, testLP1, 1_000)
	if err := f.vault.Disburse(auth.WithPrincipals(context.Background(), testBorrower), testBorrower, big.NewInt(10)); !errors.Is(err, nativecommon.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(0)); !errors.Is(err, nativecommon.ErrZeroAmount) {
		t.Fatalf("expected zero amount, got %v", err)
	}
	if err := f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(1_001)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}

func TestRepaySplitsInterest(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	f.deposit(t, testLP1, 5_000_000)
	if err := f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(2_000_000)); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if err := f.vault.Repay(engineCtx(), testBorrower, big.NewInt(2_000_000), big.NewInt(200_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	st, _ := f.vault.State()
	requireAmount(t, "reserves", st.ProtocolReserves, 20_000)
	requireAmount(t, "deposits", st.TotalDeposits, 5_180_000)
	requireAmount(t, "borrowed", st.TotalBorrowed, 0)
	requireAmount(t, "interest earned", st.TotalInterestEarned, 200_000)
	vaultBal, _ := f.ledger.Balance("USDC", testVaultID)
	requireAmount(t, "vault balance", vaultBal, 5_200_000)
}

func TestRepayFloorsBorrowedAtZero(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	f.deposit(t, testLP1, 5_000)
	if err := f.vault.Repay(engineCtx(), testBorrower, big.NewInt(1), big.NewInt(0)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	st, _ := f.vault.State()
	requireAmount(t, "borrowed", st.TotalBorrowed, 0)
	requireAmount(t, "deposits", st.TotalDeposits, 5_000)
}

func TestLiquidationReceiveRestoresDeposits(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	f.deposit(t, testLP1, 5_000_000)
	if err := f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(2_000_000)); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if err := f.vault.LiquidationReceive(engineCtx(), big.NewInt(1_500_000), big.NewInt(500_000)); err != nil {
		t.Fatalf("liquidation receive: %v", err)
	}
	st, _ := f.vault.State()
	requireAmount(t, "borrowed", st.TotalBorrowed, 0)
	requireAmount(t, "deposits", st.TotalDeposits, 6_500_000)
	vaultBal, _ := f.ledger.Balance("USDC", testVaultID)
	requireAmount(t, "vault balance unchanged", vaultBal, 3_000_000)

	if err := f.vault.LiquidationReceive(engineCtx(), big.NewInt(10), big.NewInt(10)); err != nil {
		t.Fatalf("second liquidation receive: %v", err)
	}
	st, _ = f.vault.State()
	requireAmount(t, "borrowed floored", st.TotalBorrowed, 0)
}

func TestWithdrawReserves(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	f.deposit(t, testLP1, 5_000_000)
	_ = f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(2_000_000))
	_ = f.vault.Repay(engineCtx(), testBorrower, big.NewInt(2_000_000), big.NewInt(200_000))

	adminCtx := auth.WithPrincipals(context.Background(), testAdmin)
	if err := f.vault.WithdrawReserves(adminCtx, testAdmin, big.NewInt(20_001)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	if err := f.vault.WithdrawReserves(auth.WithPrincipals(context.Background(), testLP1), testLP1, big.NewInt(1)); !errors.Is(err, nativecommon.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := f.vault.WithdrawReserves(adminCtx, testAdmin, big.NewInt(20_000)); err != nil {
		t.Fatalf("withdraw reserves: %v", err)
	}
	st, _ := f.vault.State()
	requireAmount(t, "reserves", st.ProtocolReserves, 0)
	adminBal, _ := f.ledger.Balance("USDC", testAdmin)
	requireAmount(t, "admin balance", adminBal, 20_000)
}

func TestSharesValueAndEmptyPool(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	value, _ := f.vault.SharesValue(big.NewInt(123))
	requireAmount(t, "empty pool value", value, 123)
	util, _ := f.vault.Utilization()
	if util != 0 {
		t.Fatalf("expected zero utilization for empty pool, got %d", util)
	}
	f.deposit(t, testLP1, 2_000)
	value, _ = f.vault.SharesValue(big.NewInt(1_000))
	requireAmount(t, "half pool value", value, 1_000)
}

func TestVaultPauseGuard(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	f.deposit(t, testLP1, 5_000)
	adminCtx := auth.WithPrincipals(context.Background(), testAdmin)
	if err := f.vault.Pause(auth.WithPrincipals(context.Background(), testLP1)); !errors.Is(err, nativecommon.ErrNotAuthorized) {
		t.Fatalf("expected admin requirement, got %v", err)
	}
	if err := f.vault.Pause(adminCtx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	lpCtx := auth.WithPrincipals(context.Background(), testLP1)
	if _, err := f.vault.Deposit(lpCtx, testLP1, big.NewInt(5_000)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused deposit, got %v", err)
	}
	if _, err := f.vault.Withdraw(lpCtx, testLP1, big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused withdraw, got %v", err)
	}
	if err := f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused disburse, got %v", err)
	}
	if err := f.vault.Repay(engineCtx(), testBorrower, big.NewInt(1), nil); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused repay, got %v", err)
	}
	if err := f.vault.LiquidationReceive(engineCtx(), big.NewInt(1), nil); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused liquidation receive, got %v", err)
	}
	if err := f.vault.WithdrawReserves(adminCtx, testAdmin, big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused reserve withdrawal, got %v", err)
	}
	if err := f.vault.SetBorrowEngine(adminCtx, testLP2); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused engine rotation, got %v", err)
	}
	if _, err := f.vault.State(); err != nil {
		t.Fatalf("views must work while paused: %v", err)
	}
	if err := f.vault.Unpause(adminCtx); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	f.deposit(t, testLP1, 5_000)
}

func TestAvailableLiquidityNeverNegative(t *testing.T) {
	f := newVaultFixture(t, defaultParams())
	f.deposit(t, testLP1, 100_000)
	lpCtx := auth.WithPrincipals(context.Background(), testLP1)
	steps := []func() error{
		func() error { return f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(60_000)) },
		func() error { _, err := f.vault.Withdraw(lpCtx, testLP1, big.NewInt(50_000)); return err },
		func() error { _, err := f.vault.Withdraw(lpCtx, testLP1, big.NewInt(30_000)); return err },
		func() error { return f.vault.Disburse(engineCtx(), testBorrower, big.NewInt(30_000)) },
		func() error { return f.vault.Repay(engineCtx(), testBorrower, big.NewInt(60_000), big.NewInt(0)) },
		func() error { _, err := f.vault.Withdraw(lpCtx, testLP1, big.NewInt(50_000)); return err },
	}
	for i, step := range steps {
		_ = step()
		st, _ := f.vault.State()
		if new(big.Int).Sub(st.TotalDeposits, st.TotalBorrowed).Sign() < 0 {
			t.Fatalf("step %d: deposits %s below borrowed %s", i, st.TotalDeposits, st.TotalBorrowed)
		}
	}
}

func TestInitializeValidation(t *testing.T) {
	v := NewVault(testVaultID)
	state := newMockVaultState()
	v.SetState(state)
	v.SetLedger(bank.NewLedger(state))
	ctx := auth.WithPrincipals(context.Background(), testAdmin)
	if err := v.Initialize(ctx, testAdmin, Params{}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected invalid params, got %v", err)
	}
	if err := v.Initialize(ctx, testAdmin, Params{BaseAsset: "USDC", ReserveFactor: 10_001}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected invalid reserve factor, got %v", err)
	}
	if err := v.Initialize(ctx, testAdmin, Params{BaseAsset: "USDC"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	st, _ := v.State()
	if st.MaxUtilization != DefaultMaxUtilization {
		t.Fatalf("expected default max utilization, got %d", st.MaxUtilization)
	}
	if err := v.Initialize(ctx, testAdmin, Params{BaseAsset: "USDC"}); !errors.Is(err, nativecommon.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
}
