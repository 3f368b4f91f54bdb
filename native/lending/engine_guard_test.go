package lending

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"nexum/core/events"
	nativecommon "nexum/native/common"
)

func TestEngineGuardBlocksMutations(t *testing.T) {
	f := newEngineFixture(t)
	f.addReceivable(1, testBorrower, 1_000_000, 0)
	loanID := f.borrow(t, []uint64{1}, 100_000, 3600)
	f.seedLoan(2, 900_000, 1_000_000, testStart+SecondsPerYear, 20)

	if err := f.engine.Pause(ctxFor(testStranger)); !errors.Is(err, nativecommon.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	f.events.Reset()
	if err := f.engine.Pause(ctxFor(testAdmin)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !f.engine.Paused() {
		t.Fatalf("expected engine paused")
	}
	emitted := f.events.Events()
	if len(emitted) != 1 || emitted[0] != (events.ModulePause{Module: ModuleName, Paused: true}) {
		t.Fatalf("expected module.paused event, got %v", emitted)
	}

	f.addReceivable(3, testBorrower, 1_000_000, 0)
	if _, err := f.engine.Borrow(ctxFor(testBorrower), testBorrower, []uint64{3}, big.NewInt(10), 3600); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("borrow: expected ErrModulePaused, got %v", err)
	}
	if _, err := f.engine.Repay(ctxFor(testBorrower), testBorrower, loanID, big.NewInt(10)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("repay: expected ErrModulePaused, got %v", err)
	}
	if _, err := f.engine.Liquidate(ctxFor(testLiquidator), testLiquidator, 2); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("liquidate: expected ErrModulePaused, got %v", err)
	}
	if _, err := f.engine.AccrueInterest(context.Background(), loanID); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("accrue: expected ErrModulePaused, got %v", err)
	}
	if f.vault.principal.Sign() != 0 || f.vault.recovered.Sign() != 0 {
		t.Fatalf("paused engine must not move funds")
	}

	if _, err := f.engine.Loan(loanID); err != nil {
		t.Fatalf("views should work while paused: %v", err)
	}
	cfg := DefaultConfig()
	cfg.BaseInterestRate = 500
	if err := f.engine.SetConfig(ctxFor(testAdmin), cfg); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("set config: expected ErrModulePaused, got %v", err)
	}

	if err := f.engine.Unpause(ctxFor(testAdmin)); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := f.engine.SetConfig(ctxFor(testAdmin), cfg); err != nil {
		t.Fatalf("set config after unpause: %v", err)
	}
	if _, err := f.engine.Repay(ctxFor(testBorrower), testBorrower, loanID, big.NewInt(10)); err != nil {
		t.Fatalf("repay after unpause: %v", err)
	}
}
