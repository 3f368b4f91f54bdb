package vault

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"nexum/core/auth"
	"nexum/core/events"
	nativecommon "nexum/native/common"
)

const moduleName = "vault"

// ModuleName is the pause-registry key guarding the vault.
const ModuleName = moduleName

var basisPoints = big.NewInt(nativecommon.BasisPoints)

type vaultState interface {
	nativecommon.PauseView
	SetPaused(module string, paused bool) error
	VaultState() (*State, bool, error)
	PutVaultState(*State) error
	VaultPosition(addr [20]byte) (*Position, bool, error)
	PutVaultPosition(addr [20]byte, pos *Position) error
	DeleteVaultPosition(addr [20]byte) error
}

type assetLedger interface {
	Transfer(ctx context.Context, asset string, from, to [20]byte, amount *big.Int) error
}

// Vault pools liquidity from providers and lends it to the borrow engine.
type Vault struct {
	state   vaultState
	ledger  assetLedger
	auth    auth.Authorizer
	emitter events.Emitter
	nowFn   func() uint64
	self    [20]byte
}

// NewVault constructs a vault that holds pooled funds under identity self.
func NewVault(self [20]byte) *Vault {
	return &Vault{self: self, auth: auth.ContextAuthorizer{}, emitter: events.NoopEmitter{}}
}

// SetState wires the vault to its persistence backend.
func (v *Vault) SetState(state vaultState) {
	if v == nil {
		return
	}
	v.state = state
}

// SetLedger configures the asset ledger used to move funds.
func (v *Vault) SetLedger(ledger assetLedger) {
	if v == nil {
		return
	}
	v.ledger = ledger
}

// SetAuthorizer replaces the capability checker.
func (v *Vault) SetAuthorizer(a auth.Authorizer) {
	if v == nil {
		return
	}
	if a == nil {
		a = auth.ContextAuthorizer{}
	}
	v.auth = a
}

// SetEmitter configures the event sink.
func (v *Vault) SetEmitter(emitter events.Emitter) {
	if v == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	v.emitter = emitter
}

// SetNowFunc overrides the timestamp source.
func (v *Vault) SetNowFunc(now func() uint64) {
	if v == nil {
		return
	}
	v.nowFn = now
}

// Identity returns the principal that holds pooled funds.
func (v *Vault) Identity() [20]byte {
	if v == nil {
		return [20]byte{}
	}
	return v.self
}

func (v *Vault) now() uint64 {
	if v.nowFn != nil {
		return v.nowFn()
	}
	return 0
}

func (v *Vault) emit(e events.Event) {
	if v.emitter != nil {
		v.emitter.Emit(e)
	}
}

func (v *Vault) ready() error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if v.ledger == nil {
		return errNilLedger
	}
	return nil
}

// Initialize stores the pool parameters. It succeeds once.
func (v *Vault) Initialize(ctx context.Context, admin [20]byte, params Params) error {
	if err := v.ready(); err != nil {
		return err
	}
	if admin == ([20]byte{}) {
		return ErrInvalidAddress
	}
	asset := strings.ToUpper(strings.TrimSpace(params.BaseAsset))
	if asset == "" {
		return fmt.Errorf("%w: base asset required", ErrInvalidParams)
	}
	if params.ReserveFactor > nativecommon.BasisPoints {
		return fmt.Errorf("%w: reserve factor %d exceeds 10000", ErrInvalidParams, params.ReserveFactor)
	}
	maxUtil := params.MaxUtilization
	if maxUtil == 0 {
		maxUtil = DefaultMaxUtilization
	}
	if maxUtil > nativecommon.BasisPoints {
		return fmt.Errorf("%w: max utilization %d exceeds 10000", ErrInvalidParams, maxUtil)
	}
	if params.MinDeposit != nil && params.MinDeposit.Sign() < 0 {
		return fmt.Errorf("%w: negative minimum deposit", ErrInvalidParams)
	}
	if _, ok, err := v.state.VaultState(); err != nil {
		return err
	} else if ok {
		return nativecommon.ErrAlreadyInitialized
	}
	if err := v.auth.Require(ctx, admin); err != nil {
		return err
	}
	return v.state.PutVaultState(&State{
		Admin:               admin,
		BaseAsset:           asset,
		TotalDeposits:       big.NewInt(0),
		TotalShares:         big.NewInt(0),
		TotalBorrowed:       big.NewInt(0),
		TotalInterestEarned: big.NewInt(0),
		ProtocolReserves:    big.NewInt(0),
		ReserveFactor:       params.ReserveFactor,
		MaxUtilization:      maxUtil,
		MinDeposit:          nativecommon.CopyAmount(params.MinDeposit),
	})
}

func (v *Vault) load() (*State, error) {
	st, ok, err := v.state.VaultState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nativecommon.ErrNotInitialized
	}
	return st, nil
}

func (v *Vault) requireAdmin(ctx context.Context) (*State, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	st, err := v.load()
	if err != nil {
		return nil, err
	}
	if err := v.auth.Require(ctx, st.Admin); err != nil {
		return nil, err
	}
	return st, nil
}

func (v *Vault) requireBorrowEngine(ctx context.Context) (*State, error) {
	st, err := v.load()
	if err != nil {
		return nil, err
	}
	if !st.HasBorrowEngine() {
		return nil, ErrNotBorrowEngine
	}
	if err := v.auth.Require(ctx, st.BorrowEngine); err != nil {
		return nil, err
	}
	return st, nil
}

// SetBorrowEngine allow-lists the borrow engine identity for disburse,
// repay, and liquidation bookkeeping.
func (v *Vault) SetBorrowEngine(ctx context.Context, engine [20]byte) error {
	if err := nativecommon.Guard(v.state, moduleName); err != nil {
		return err
	}
	if engine == ([20]byte{}) {
		return ErrInvalidAddress
	}
	st, err := v.requireAdmin(ctx)
	if err != nil {
		return err
	}
	st.BorrowEngine = engine
	return v.state.PutVaultState(st)
}

// payout moves pooled funds from the vault identity to recipient.
func (v *Vault) payout(ctx context.Context, asset string, to [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	return v.ledger.Transfer(auth.WithPrincipals(ctx, v.self), asset, v.self, to, amount)
}

// Deposit adds liquidity and returns the shares minted to depositor.
func (v *Vault) Deposit(ctx context.Context, depositor [20]byte, amount *big.Int) (*big.Int, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(v.state, moduleName); err != nil {
		return nil, err
	}
	if !nativecommon.ValidAmount(amount) {
		return nil, nativecommon.ErrZeroAmount
	}
	if err := v.auth.Require(ctx, depositor); err != nil {
		return nil, err
	}
	st, err := v.load()
	if err != nil {
		return nil, err
	}
	if amount.Cmp(nativecommon.Amount(st.MinDeposit)) < 0 {
		return nil, ErrInsufficientDeposit
	}

	shares, err := sharesForDeposit(st, amount)
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return nil, nativecommon.ErrZeroAmount
	}
	deposits, err := nativecommon.CheckedAdd(st.TotalDeposits, amount)
	if err != nil {
		return nil, err
	}
	totalShares, err := nativecommon.CheckedAdd(st.TotalShares, shares)
	if err != nil {
		return nil, err
	}
	pos, _, err := v.state.VaultPosition(depositor)
	if err != nil {
		return nil, err
	}
	held := big.NewInt(0)
	if pos != nil {
		held = nativecommon.Amount(pos.Shares)
	}
	positionShares, err := nativecommon.CheckedAdd(held, shares)
	if err != nil {
		return nil, err
	}

	if err := v.ledger.Transfer(ctx, st.BaseAsset, depositor, v.self, amount); err != nil {
		return nil, err
	}
	if err := v.state.PutVaultPosition(depositor, &Position{Shares: positionShares, DepositTimestamp: v.now()}); err != nil {
		return nil, err
	}
	st.TotalDeposits = deposits
	st.TotalShares = totalShares
	if err := v.state.PutVaultState(st); err != nil {
		return nil, err
	}
	v.emit(events.VaultDeposit{Depositor: depositor, Amount: new(big.Int).Set(amount), Shares: new(big.Int).Set(shares)})
	return shares, nil
}

// sharesForDeposit seeds the pool 1:1 and prices later deposits against
// total assets.
func sharesForDeposit(st *State, amount *big.Int) (*big.Int, error) {
	totalShares := nativecommon.Amount(st.TotalShares)
	if totalShares.Sign() == 0 {
		return new(big.Int).Set(amount), nil
	}
	assets := st.TotalAssets()
	if assets.Sign() == 0 {
		return new(big.Int).Set(amount), nil
	}
	return nativecommon.MulDiv(amount, totalShares, assets)
}

// Withdraw burns shares and pays out their value from available liquidity.
func (v *Vault) Withdraw(ctx context.Context, depositor [20]byte, shares *big.Int) (*big.Int, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(v.state, moduleName); err != nil {
		return nil, err
	}
	if !nativecommon.ValidAmount(shares) {
		return nil, nativecommon.ErrZeroAmount
	}
	if err := v.auth.Require(ctx, depositor); err != nil {
		return nil, err
	}
	st, err := v.load()
	if err != nil {
		return nil, err
	}
	pos, ok, err := v.state.VaultPosition(depositor)
	if err != nil {
		return nil, err
	}
	if !ok || nativecommon.Amount(pos.Shares).Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}
	amount, err := nativecommon.MulDiv(shares, st.TotalAssets(), st.TotalShares)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(st.AvailableLiquidity()) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	deposits, err := nativecommon.CheckedSub(st.TotalDeposits, amount)
	if err != nil {
		return nil, err
	}
	totalShares, err := nativecommon.CheckedSub(st.TotalShares, shares)
	if err != nil {
		return nil, err
	}

	remaining := new(big.Int).Sub(pos.Shares, shares)
	if remaining.Sign() == 0 {
		err = v.state.DeleteVaultPosition(depositor)
	} else {
		pos.Shares = remaining
		err = v.state.PutVaultPosition(depositor, pos)
	}
	if err != nil {
		return nil, err
	}
	st.TotalDeposits = deposits
	st.TotalShares = totalShares
	if err := v.state.PutVaultState(st); err != nil {
		return nil, err
	}
	if err := v.payout(ctx, st.BaseAsset, depositor, amount); err != nil {
		return nil, err
	}
	v.emit(events.VaultWithdraw{Depositor: depositor, Amount: new(big.Int).Set(amount), Shares: new(big.Int).Set(shares)})
	return amount, nil
}

// Disburse lends amount to borrower. Only the borrow engine may call it.
func (v *Vault) Disburse(ctx context.Context, borrower [20]byte, amount *big.Int) error {
	if err := v.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(v.state, moduleName); err != nil {
		return err
	}
	if !nativecommon.ValidAmount(amount) {
		return nativecommon.ErrZeroAmount
	}
	st, err := v.requireBorrowEngine(ctx)
	if err != nil {
		return err
	}
	if amount.Cmp(st.AvailableLiquidity()) > 0 {
		return ErrInsufficientLiquidity
	}
	borrowed, err := nativecommon.CheckedAdd(st.TotalBorrowed, amount)
	if err != nil {
		return err
	}
	if nativecommon.Amount(st.TotalDeposits).Sign() > 0 {
		utilization, err := nativecommon.MulDiv(borrowed, basisPoints, st.TotalDeposits)
		if err != nil {
			return err
		}
		if utilization.Cmp(new(big.Int).SetUint64(st.MaxUtilization)) > 0 {
			return fmt.Errorf("%w: %s bps > %d bps", ErrMaxUtilizationExceeded, utilization, st.MaxUtilization)
		}
	}
	st.TotalBorrowed = borrowed
	if err := v.state.PutVaultState(st); err != nil {
		return err
	}
	if err := v.payout(ctx, st.BaseAsset, borrower, amount); err != nil {
		return err
	}
	v.emit(events.VaultDisburse{Borrower: borrower, Amount: new(big.Int).Set(amount)})
	return nil
}

// Repay pulls principal and interest from borrower back into the pool and
// splits the interest between liquidity providers and protocol reserves.
// Only the borrow engine may call it.
func (v *Vault) Repay(ctx context.Context, borrower [20]byte, principal, interest *big.Int) error {
	if err := v.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(v.state, moduleName); err != nil {
		return err
	}
	principal = nativecommon.Amount(principal)
	interest = nativecommon.Amount(interest)
	if principal.Sign() < 0 || interest.Sign() < 0 {
		return nativecommon.ErrOverflow
	}
	total, err := nativecommon.CheckedAdd(principal, interest)
	if err != nil {
		return err
	}
	if total.Sign() == 0 {
		return nativecommon.ErrZeroAmount
	}
	st, err := v.requireBorrowEngine(ctx)
	if err != nil {
		return err
	}
	protocolShare, err := nativecommon.MulDivBps(interest, st.ReserveFactor)
	if err != nil {
		return err
	}
	lpShare := new(big.Int).Sub(interest, protocolShare)

	// Liquidations clear recovered value including the penalty, so the pool
	// total can already sit below the principal outstanding on live loans.
	borrowed := nativecommon.SaturatingSub(st.TotalBorrowed, principal)
	deposits, err := nativecommon.CheckedAdd(st.TotalDeposits, lpShare)
	if err != nil {
		return err
	}
	earned, err := nativecommon.CheckedAdd(st.TotalInterestEarned, interest)
	if err != nil {
		return err
	}
	reserves, err := nativecommon.CheckedAdd(st.ProtocolReserves, protocolShare)
	if err != nil {
		return err
	}

	if err := v.ledger.Transfer(ctx, st.BaseAsset, borrower, v.self, total); err != nil {
		return err
	}
	st.TotalBorrowed = borrowed
	st.TotalDeposits = deposits
	st.TotalInterestEarned = earned
	st.ProtocolReserves = reserves
	if err := v.state.PutVaultState(st); err != nil {
		return err
	}
	v.emit(events.VaultRepay{
		Borrower:      borrower,
		Principal:     new(big.Int).Set(principal),
		Interest:      new(big.Int).Set(interest),
		ProtocolShare: protocolShare,
	})
	return nil
}

// LiquidationReceive clears liquidated debt from the pool. total_borrowed
// drops by recovered+shortfall, floored at zero, and recovered is credited
// back to deposits without a matching asset transfer: the liquidator keeps
// the receivables. Only the borrow engine may call it.
func (v *Vault) LiquidationReceive(ctx context.Context, recovered, shortfall *big.Int) error {
	if err := v.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(v.state, moduleName); err != nil {
		return err
	}
	recovered = nativecommon.Amount(recovered)
	shortfall = nativecommon.Amount(shortfall)
	if recovered.Sign() < 0 || shortfall.Sign() < 0 {
		return nativecommon.ErrOverflow
	}
	cleared, err := nativecommon.CheckedAdd(recovered, shortfall)
	if err != nil {
		return err
	}
	st, err := v.requireBorrowEngine(ctx)
	if err != nil {
		return err
	}
	st.TotalBorrowed = nativecommon.SaturatingSub(st.TotalBorrowed, cleared)
	if recovered.Sign() > 0 {
		deposits, err := nativecommon.CheckedAdd(st.TotalDeposits, recovered)
		if err != nil {
			return err
		}
		st.TotalDeposits = deposits
	}
	if err := v.state.PutVaultState(st); err != nil {
		return err
	}
	v.emit(events.VaultLiquidation{Recovered: new(big.Int).Set(recovered), Shortfall: new(big.Int).Set(shortfall)})
	return nil
}

// WithdrawReserves sends accumulated protocol reserves to recipient.
func (v *Vault) WithdrawReserves(ctx context.Context, recipient [20]byte, amount *big.Int) error {
	if err := nativecommon.Guard(v.state, moduleName); err != nil {
		return err
	}
	if !nativecommon.ValidAmount(amount) {
		return nativecommon.ErrZeroAmount
	}
	if recipient == ([20]byte{}) {
		return ErrInvalidAddress
	}
	st, err := v.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if amount.Cmp(nativecommon.Amount(st.ProtocolReserves)) > 0 {
		return ErrInsufficientLiquidity
	}
	st.ProtocolReserves = new(big.Int).Sub(st.ProtocolReserves, amount)
	if err := v.state.PutVaultState(st); err != nil {
		return err
	}
	if err := v.payout(ctx, st.BaseAsset, recipient, amount); err != nil {
		return err
	}
	v.emit(events.VaultReservesWithdrawn{Recipient: recipient, Amount: new(big.Int).Set(amount)})
	return nil
}

// Pause halts every mutating entry point of the vault except Unpause.
func (v *Vault) Pause(ctx context.Context) error { return v.setPaused(ctx, true) }

// Unpause resumes the vault.
func (v *Vault) Unpause(ctx context.Context) error { return v.setPaused(ctx, false) }

func (v *Vault) setPaused(ctx context.Context, paused bool) error {
	if _, err := v.requireAdmin(ctx); err != nil {
		return err
	}
	if err := v.state.SetPaused(moduleName, paused); err != nil {
		return err
	}
	v.emit(events.ModulePause{Module: moduleName, Paused: paused})
	return nil
}

// State returns a copy of the pool accounting.
func (v *Vault) State() (*State, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	return v.load()
}

// TotalAssets returns the value backing all outstanding shares.
func (v *Vault) TotalAssets() (*big.Int, error) {
	st, err := v.State()
	if err != nil {
		return nil, err
	}
	return st.TotalAssets(), nil
}

// AvailableLiquidity returns deposits not currently lent out.
func (v *Vault) AvailableLiquidity() (*big.Int, error) {
	st, err := v.State()
	if err != nil {
		return nil, err
	}
	return st.AvailableLiquidity(), nil
}

// Utilization returns total_borrowed/total_deposits in basis points, or zero
// for an empty pool.
func (v *Vault) Utilization() (uint64, error) {
	st, err := v.State()
	if err != nil {
		return 0, err
	}
	if nativecommon.Amount(st.TotalDeposits).Sign() == 0 {
		return 0, nil
	}
	ratio, err := nativecommon.MulDiv(st.TotalBorrowed, basisPoints, st.TotalDeposits)
	if err != nil {
		return 0, err
	}
	if !ratio.IsUint64() {
		return 0, nativecommon.ErrOverflow
	}
	return ratio.Uint64(), nil
}

// Position returns the depositor's share balance, or nil when none exists.
func (v *Vault) Position(depositor [20]byte) (*Position, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	pos, ok, err := v.state.VaultPosition(depositor)
	if err != nil || !ok {
		return nil, err
	}
	return pos, nil
}

// SharesValue converts shares into their current asset value. An empty pool
// values shares 1:1.
func (v *Vault) SharesValue(shares *big.Int) (*big.Int, error) {
	st, err := v.State()
	if err != nil {
		return nil, err
	}
	if nativecommon.Amount(st.TotalShares).Sign() == 0 {
		return nativecommon.CopyAmount(shares), nil
	}
	return nativecommon.MulDiv(nativecommon.Amount(shares), st.TotalAssets(), st.TotalShares)
}
