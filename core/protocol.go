package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"nexum/config"
	"nexum/core/auth"
	"nexum/core/events"
	"nexum/core/state"
	"nexum/crypto"
	"nexum/native/bank"
	"nexum/native/lending"
	"nexum/native/receivables"
	"nexum/native/vault"
	"nexum/storage"
)

var (
	// VaultIdentity holds pooled liquidity on the asset ledger.
	VaultIdentity = crypto.ModuleAddress(vault.ModuleName)
	// EngineIdentity is the capability the registry and the vault allow-list.
	EngineIdentity = crypto.ModuleAddress(lending.ModuleName)
)

// ErrGenesisApplied is returned when Bootstrap runs against initialized state.
var ErrGenesisApplied = errors.New("core: genesis already applied")

// Tx bundles the components bound to one storage transaction. Handles are
// only valid inside the callback they were passed to.
type Tx struct {
	State    *state.Manager
	Ledger   *bank.Ledger
	Registry *receivables.Registry
	Vault    *vault.Vault
	Engine   *lending.Engine
	Now      uint64
}

// Protocol serializes top-level operations and gives each one all-or-nothing
// semantics over the backing database.
type Protocol struct {
	mu     sync.Mutex
	db     storage.Database
	sink   events.Emitter
	clock  Clock
	logger *slog.Logger
}

// Option customises a Protocol.
type Option func(*Protocol)

// WithEmitter forwards committed events to sink.
func WithEmitter(sink events.Emitter) Option {
	return func(p *Protocol) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(clock Clock) Option {
	return func(p *Protocol) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the logger used for commit diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Protocol) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProtocol binds the protocol to db.
func NewProtocol(db storage.Database, opts ...Option) (*Protocol, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	p := &Protocol{
		db:     db,
		sink:   events.NoopEmitter{},
		clock:  NewSystemClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Protocol) bind(store state.Store, emitter events.Emitter, now uint64) *Tx {
	mgr := state.NewManager(store)
	nowFn := func() uint64 { return now }

	ledger := bank.NewLedger(mgr)
	ledger.SetEmitter(emitter)

	registry := receivables.NewRegistry()
	registry.SetState(mgr)
	registry.SetEmitter(emitter)
	registry.SetNowFunc(nowFn)

	pool := vault.NewVault(VaultIdentity)
	pool.SetState(mgr)
	pool.SetLedger(ledger)
	pool.SetEmitter(emitter)
	pool.SetNowFunc(nowFn)

	engine := lending.NewEngine(EngineIdentity)
	engine.SetState(mgr)
	engine.SetRegistry(registry)
	engine.SetVault(pool)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(nowFn)

	return &Tx{State: mgr, Ledger: ledger, Registry: registry, Vault: pool, Engine: engine, Now: now}
}

// Execute runs fn against a fresh transaction. When fn returns nil the
// writes are committed in one batch and the buffered events are forwarded;
// otherwise everything fn did is discarded.
func (p *Protocol) Execute(ctx context.Context, op string, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := storage.NewTx(p.db)
	defer tx.Discard()
	buffer := events.NewBuffer()
	bound := p.bind(tx, buffer, p.clock.Now())

	if err := fn(bound); err != nil {
		p.logger.Debug("protocol operation rejected", slog.String("op", op), slog.Any("error", err))
		return err
	}
	writes := tx.Pending()
	if err := tx.Commit(); err != nil {
		p.logger.Error("protocol commit failed", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("commit %s: %w", op, err)
	}
	flushed := buffer.Flush(p.sink)
	p.logger.Debug("protocol operation committed",
		slog.String("op", op),
		slog.Int("writes", writes),
		slog.Int("events", flushed))
	return nil
}

// View runs fn against a transaction that is always discarded.
func (p *Protocol) View(fn func(*Tx) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := storage.NewTx(p.db)
	defer tx.Discard()
	return fn(p.bind(tx, events.NoopEmitter{}, p.clock.Now()))
}

// Bootstrap initializes every component from the genesis document: roles,
// vault parameters, borrow configuration, borrow engine allow-listing, initial
// pauses, and balance allocations. It runs at most once per database.
func (p *Protocol) Bootstrap(ctx context.Context, genesis *config.Genesis) error {
	if genesis == nil {
		return fmt.Errorf("core: genesis required")
	}
	admin := genesis.AdminAddress()
	if admin == ([20]byte{}) {
		return fmt.Errorf("core: genesis must be validated before bootstrap")
	}
	adminCtx := auth.WithPrincipals(ctx, admin)
	return p.Execute(ctx, "bootstrap", func(tx *Tx) error {
		applied, err := tx.State.GenesisApplied()
		if err != nil {
			return err
		}
		if applied {
			return ErrGenesisApplied
		}
		if err := tx.Registry.Initialize(adminCtx, admin, genesis.VerifierAddress()); err != nil {
			return fmt.Errorf("registry: %w", err)
		}
		if err := tx.Registry.SetBorrowEngine(adminCtx, EngineIdentity); err != nil {
			return fmt.Errorf("registry: %w", err)
		}
		if err := tx.Vault.Initialize(adminCtx, admin, genesis.VaultParams()); err != nil {
			return fmt.Errorf("vault: %w", err)
		}
		if err := tx.Vault.SetBorrowEngine(adminCtx, EngineIdentity); err != nil {
			return fmt.Errorf("vault: %w", err)
		}
		if err := tx.Engine.Initialize(adminCtx, admin, genesis.Lending); err != nil {
			return fmt.Errorf("lending: %w", err)
		}
		for _, alloc := range genesis.Alloc {
			if err := tx.Ledger.Mint(alloc.Asset, alloc.Account(), alloc.Value()); err != nil {
				return fmt.Errorf("alloc: %w", err)
			}
		}
		pauses := []struct {
			module string
			paused bool
		}{
			{receivables.ModuleName, genesis.Pauses.Receivables},
			{vault.ModuleName, genesis.Pauses.Vault},
			{lending.ModuleName, genesis.Pauses.Lending},
		}
		for _, pause := range pauses {
			if !pause.paused {
				continue
			}
			if err := tx.State.SetPaused(pause.module, true); err != nil {
				return err
			}
		}
		return tx.State.MarkGenesisApplied()
	})
}
