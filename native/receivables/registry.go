package receivables

import (
	"context"
	"fmt"
	"math/big"

	"nexum/core/auth"
	"nexum/core/events"
	nativecommon "nexum/native/common"
)

const moduleName = "receivables"

// ModuleName is the pause-registry key guarding the registry.
const ModuleName = moduleName

type registryState interface {
	nativecommon.PauseView
	SetPaused(module string, paused bool) error
	ReceivableSettings() (*Settings, bool, error)
	PutReceivableSettings(*Settings) error
	ReceivableCounters() (*Counters, error)
	PutReceivableCounters(*Counters) error
	GetReceivable(id uint64) (*Receivable, bool, error)
	PutReceivable(*Receivable) error
	OwnerReceivables(owner [20]byte) ([]uint64, error)
	PutOwnerReceivables(owner [20]byte, ids []uint64) error
}

// Registry owns tokenized receivable records and their status lifecycle.
type Registry struct {
	state   registryState
	auth    auth.Authorizer
	emitter events.Emitter
	nowFn   func() uint64
}

// NewRegistry constructs a registry with a context-based authorizer and a
// no-op emitter.
func NewRegistry() *Registry {
	return &Registry{auth: auth.ContextAuthorizer{}, emitter: events.NoopEmitter{}}
}

// SetState wires the registry to its persistence backend.
func (r *Registry) SetState(state registryState) {
	if r == nil {
		return
	}
	r.state = state
}

// SetAuthorizer replaces the capability checker.
func (r *Registry) SetAuthorizer(a auth.Authorizer) {
	if r == nil {
		return
	}
	if a == nil {
		a = auth.ContextAuthorizer{}
	}
	r.auth = a
}

// SetEmitter configures the event sink.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

// SetNowFunc overrides the timestamp source.
func (r *Registry) SetNowFunc(now func() uint64) {
	if r == nil {
		return
	}
	r.nowFn = now
}

func (r *Registry) now() uint64 {
	if r.nowFn != nil {
		return r.nowFn()
	}
	return 0
}

func (r *Registry) emit(e events.Event) {
	if r.emitter != nil {
		r.emitter.Emit(e)
	}
}

// Initialize records the admin and verifier identities. It succeeds once.
func (r *Registry) Initialize(ctx context.Context, admin, verifier [20]byte) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if admin == ([20]byte{}) || verifier == ([20]byte{}) {
		return ErrInvalidAddress
	}
	if _, ok, err := r.state.ReceivableSettings(); err != nil {
		return err
	} else if ok {
		return nativecommon.ErrAlreadyInitialized
	}
	if err := r.auth.Require(ctx, admin); err != nil {
		return err
	}
	if err := r.state.PutReceivableSettings(&Settings{Admin: admin, Verifier: verifier}); err != nil {
		return err
	}
	return r.state.PutReceivableCounters(&Counters{NextID: 1})
}

func (r *Registry) settings() (*Settings, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	settings, ok, err := r.state.ReceivableSettings()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nativecommon.ErrNotInitialized
	}
	return settings, nil
}

func (r *Registry) requireAdmin(ctx context.Context) (*Settings, error) {
	settings, err := r.settings()
	if err != nil {
		return nil, err
	}
	if err := r.auth.Require(ctx, settings.Admin); err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *Registry) requireBorrowEngine(ctx context.Context) error {
	settings, err := r.settings()
	if err != nil {
		return err
	}
	if !settings.HasBorrowEngine() {
		return ErrNotBorrowEngine
	}
	return r.auth.Require(ctx, settings.BorrowEngine)
}

// SetBorrowEngine allow-lists the borrow engine identity for lock, unlock,
// and liquidation transfers.
func (r *Registry) SetBorrowEngine(ctx context.Context, engine [20]byte) error {
	if err := nativecommon.Guard(r.state, moduleName); err != nil {
		return err
	}
	if engine == ([20]byte{}) {
		return ErrInvalidAddress
	}
	settings, err := r.requireAdmin(ctx)
	if err != nil {
		return err
	}
	settings.BorrowEngine = engine
	return r.state.PutReceivableSettings(settings)
}

// SetVerifier rotates the verifier identity.
func (r *Registry) SetVerifier(ctx context.Context, verifier [20]byte) error {
	if err := nativecommon.Guard(r.state, moduleName); err != nil {
		return err
	}
	if verifier == ([20]byte{}) {
		return ErrInvalidAddress
	}
	settings, err := r.requireAdmin(ctx)
	if err != nil {
		return err
	}
	settings.Verifier = verifier
	return r.state.PutReceivableSettings(settings)
}

// Mint records a verified receivable owned by creditor and returns its id.
// Both the verifier and the creditor must authorize the call.
func (r *Registry) Mint(ctx context.Context, creditor [20]byte, params MintParams) (uint64, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(r.state, moduleName); err != nil {
		return 0, err
	}
	if creditor == ([20]byte{}) {
		return 0, ErrInvalidAddress
	}
	if !nativecommon.ValidAmount(params.FaceValue) {
		return 0, ErrInvalidFaceValue
	}
	currency := NormalizeCurrency(params.Currency)
	if currency == "" {
		return 0, ErrInvalidCurrency
	}
	now := r.now()
	if params.MaturityDate <= now {
		return 0, ErrInvalidMaturityDate
	}
	settings, err := r.settings()
	if err != nil {
		return 0, err
	}
	if !auth.Has(ctx, settings.Verifier) {
		return 0, fmt.Errorf("%w: %w", nativecommon.ErrNotAuthorized, ErrNotVerifier)
	}
	if err := r.auth.Require(ctx, creditor); err != nil {
		return 0, err
	}

	counters, err := r.state.ReceivableCounters()
	if err != nil {
		return 0, err
	}
	id := counters.NextID
	if id == 0 {
		id = 1
	}
	record := &Receivable{
		ID:               id,
		Owner:            creditor,
		OriginalCreditor: creditor,
		DebtorHash:       params.DebtorHash,
		FaceValue:        new(big.Int).Set(params.FaceValue),
		Currency:         currency,
		IssuanceDate:     now,
		MaturityDate:     params.MaturityDate,
		ProofHash:        params.ProofHash,
		Status:           StatusActive,
		RiskScore:        params.RiskScore,
		MetadataURI:      params.MetadataURI,
	}
	if err := r.state.PutReceivable(record); err != nil {
		return 0, err
	}
	if err := r.appendOwner(creditor, id); err != nil {
		return 0, err
	}
	counters.NextID = id + 1
	counters.TotalMinted++
	counters.TotalActive++
	if err := r.state.PutReceivableCounters(counters); err != nil {
		return 0, err
	}
	r.emit(events.ReceivableMinted{
		ID:           id,
		Creditor:     creditor,
		FaceValue:    record.FaceValue,
		Currency:     currency,
		MaturityDate: record.MaturityDate,
		RiskScore:    record.RiskScore,
	})
	return id, nil
}

// Lock marks an Active receivable as Collateralized. Only the borrow engine
// may lock.
func (r *Registry) Lock(ctx context.Context, id uint64) error {
	return r.transition(ctx, id, StatusActive, StatusCollateralized, events.TypeReceivableLocked)
}

// Unlock returns a Collateralized receivable to Active. Only the borrow
// engine may unlock.
func (r *Registry) Unlock(ctx context.Context, id uint64) error {
	return r.transition(ctx, id, StatusCollateralized, StatusActive, events.TypeReceivableUnlocked)
}

func (r *Registry) transition(ctx context.Context, id uint64, from, to Status, eventType string) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(r.state, moduleName); err != nil {
		return err
	}
	if err := r.requireBorrowEngine(ctx); err != nil {
		return err
	}
	record, err := r.load(id)
	if err != nil {
		return err
	}
	if record.Status != from {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, record.Status)
	}
	record.Status = to
	if err := r.state.PutReceivable(record); err != nil {
		return err
	}
	r.emit(events.ReceivableStatusChanged{Type: eventType, ID: id, Owner: record.Owner})
	return nil
}

// Transfer moves title of an Active receivable from one principal to
// another. The current owner must authorize the transfer; the borrow engine
// may also transfer while seizing collateral during liquidation.
func (r *Registry) Transfer(ctx context.Context, id uint64, from, to [20]byte) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(r.state, moduleName); err != nil {
		return err
	}
	if from == ([20]byte{}) || to == ([20]byte{}) {
		return ErrInvalidAddress
	}
	settings, err := r.settings()
	if err != nil {
		return err
	}
	if !auth.Has(ctx, from) && !(settings.HasBorrowEngine() && auth.Has(ctx, settings.BorrowEngine)) {
		if err := r.auth.Require(ctx, from); err != nil {
			return err
		}
	}
	record, err := r.load(id)
	if err != nil {
		return err
	}
	if record.Owner != from {
		return ErrNotOwner
	}
	if record.Status != StatusActive {
		return ErrTransferNotAllowed
	}
	if from == to {
		return nil
	}
	record.Owner = to
	if err := r.state.PutReceivable(record); err != nil {
		return err
	}
	if err := r.removeOwner(from, id); err != nil {
		return err
	}
	if err := r.appendOwner(to, id); err != nil {
		return err
	}
	r.emit(events.ReceivableTransferred{ID: id, From: from, To: to})
	return nil
}

// Settle closes an Active or Matured receivable after the debtor paid.
func (r *Registry) Settle(ctx context.Context, id uint64) error {
	return r.close(ctx, id, StatusSettled, events.TypeReceivableSettled, func(s Status) bool {
		return s == StatusActive || s == StatusMatured
	})
}

// MarkDefault closes a receivable whose debtor failed to pay. Any
// non-terminal status may default, including Collateralized.
func (r *Registry) MarkDefault(ctx context.Context, id uint64) error {
	return r.close(ctx, id, StatusDefaulted, events.TypeReceivableDefaulted, func(s Status) bool {
		return !s.Terminal()
	})
}

func (r *Registry) close(ctx context.Context, id uint64, to Status, eventType string, allowed func(Status) bool) error {
	if err := nativecommon.Guard(r.state, moduleName); err != nil {
		return err
	}
	if _, err := r.requireAdmin(ctx); err != nil {
		return err
	}
	record, err := r.load(id)
	if err != nil {
		return err
	}
	if !allowed(record.Status) {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, record.Status)
	}
	record.Status = to
	if err := r.state.PutReceivable(record); err != nil {
		return err
	}
	counters, err := r.state.ReceivableCounters()
	if err != nil {
		return err
	}
	if counters.TotalActive > 0 {
		counters.TotalActive--
	}
	if err := r.state.PutReceivableCounters(counters); err != nil {
		return err
	}
	r.emit(events.ReceivableStatusChanged{Type: eventType, ID: id, Owner: record.Owner})
	return nil
}

// Mature moves an Active receivable past its maturity date to Matured.
func (r *Registry) Mature(ctx context.Context, id uint64) error {
	if err := nativecommon.Guard(r.state, moduleName); err != nil {
		return err
	}
	if _, err := r.requireAdmin(ctx); err != nil {
		return err
	}
	record, err := r.load(id)
	if err != nil {
		return err
	}
	if record.Status != StatusActive {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, record.Status)
	}
	if r.now() < record.MaturityDate {
		return ErrNotMatured
	}
	record.Status = StatusMatured
	if err := r.state.PutReceivable(record); err != nil {
		return err
	}
	r.emit(events.ReceivableStatusChanged{Type: events.TypeReceivableMatured, ID: id, Owner: record.Owner})
	return nil
}

// Pause halts every mutating entry point of the registry except Unpause.
func (r *Registry) Pause(ctx context.Context) error { return r.setPaused(ctx, true) }

// Unpause resumes the registry.
func (r *Registry) Unpause(ctx context.Context) error { return r.setPaused(ctx, false) }

func (r *Registry) setPaused(ctx context.Context, paused bool) error {
	if _, err := r.requireAdmin(ctx); err != nil {
		return err
	}
	if err := r.state.SetPaused(moduleName, paused); err != nil {
		return err
	}
	r.emit(events.ModulePause{Module: moduleName, Paused: paused})
	return nil
}

// Receivable returns a copy of the stored record.
func (r *Registry) Receivable(id uint64) (*Receivable, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	return r.load(id)
}

// OwnerReceivables lists the receivable ids currently owned by owner.
func (r *Registry) OwnerReceivables(owner [20]byte) ([]uint64, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	return r.state.OwnerReceivables(owner)
}

// Counters returns the registry-wide totals.
func (r *Registry) Counters() (*Counters, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	return r.state.ReceivableCounters()
}

// Settings returns the configured role assignments.
func (r *Registry) Settings() (*Settings, error) {
	return r.settings()
}

// Paused reports whether the registry circuit breaker is engaged.
func (r *Registry) Paused() bool {
	if r == nil || r.state == nil {
		return false
	}
	return r.state.IsPaused(moduleName)
}

func (r *Registry) load(id uint64) (*Receivable, error) {
	record, ok, err := r.state.GetReceivable(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrReceivableNotFound, id)
	}
	return record, nil
}

func (r *Registry) appendOwner(owner [20]byte, id uint64) error {
	ids, err := r.state.OwnerReceivables(owner)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return r.state.PutOwnerReceivables(owner, append(ids, id))
}

func (r *Registry) removeOwner(owner [20]byte, id uint64) error {
	ids, err := r.state.OwnerReceivables(owner)
	if err != nil {
		return err
	}
	filtered := ids[:0]
	for _, existing := range ids {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	return r.state.PutOwnerReceivables(owner, filtered)
}

// TotalMinted returns the number of receivables ever minted.
func (r *Registry) TotalMinted() (uint64, error) {
	counters, err := r.Counters()
	if err != nil {
		return 0, err
	}
	return counters.TotalMinted, nil
}

// TotalActive returns the number of receivables that are not yet settled or
// defaulted.
func (r *Registry) TotalActive() (uint64, error) {
	counters, err := r.Counters()
	if err != nil {
		return 0, err
	}
	return counters.TotalActive, nil
}

// Admin returns the registry admin.
func (r *Registry) Admin() ([20]byte, error) {
	settings, err := r.settings()
	if err != nil {
		return [20]byte{}, err
	}
	return settings.Admin, nil
}

// Verifier returns the identity allowed to attest new receivables.
func (r *Registry) Verifier() ([20]byte, error) {
	settings, err := r.settings()
	if err != nil {
		return [20]byte{}, err
	}
	return settings.Verifier, nil
}

// BorrowEngine returns the allow-listed borrow engine, or the zero address
// when none is configured.
func (r *Registry) BorrowEngine() ([20]byte, error) {
	settings, err := r.settings()
	if err != nil {
		return [20]byte{}, err
	}
	return settings.BorrowEngine, nil
}
