package lending

import (
	"errors"
	"math/big"
	"testing"

	"nexum/native/receivables"
)

func TestLiquidateHealthyShortfallFree(t *testing.T) {
	f := newEngineFixture(t)
	f.seedLoan(1, 900_000, 1_000_000, testStart+SecondsPerYear, 10)

	result, err := f.engine.Liquidate(ctxFor(testLiquidator), testLiquidator, 1)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.Penalty.Cmp(big.NewInt(45_000)) != 0 {
		t.Fatalf("expected penalty 45000, got %s", result.Penalty)
	}
	if result.Recovered.Cmp(big.NewInt(945_000)) != 0 || result.Shortfall.Sign() != 0 {
		t.Fatalf("expected recovered 945000 and no shortfall, got %s/%s", result.Recovered, result.Shortfall)
	}
	if f.vault.recovered.Cmp(big.NewInt(945_000)) != 0 {
		t.Fatalf("vault should book 945000 recovered, got %s", f.vault.recovered)
	}
	rec := f.registry.records[10]
	if rec.Owner != testLiquidator || rec.Status != receivables.StatusActive {
		t.Fatalf("collateral should move to liquidator unlocked, got owner=%x status=%s", rec.Owner, rec.Status)
	}
	if f.state.loans[1].Status != LoanLiquidated {
		t.Fatalf("expected liquidated status")
	}

	if _, err := f.engine.Liquidate(ctxFor(testLiquidator), testLiquidator, 1); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus on second liquidation, got %v", err)
	}
}

func TestLiquidateRecordsShortfall(t *testing.T) {
	f := newEngineFixture(t)
	f.seedLoan(1, 1_000_000, 950_000, testStart+SecondsPerYear, 10)

	result, err := f.engine.Liquidate(ctxFor(testLiquidator), testLiquidator, 1)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.Recovered.Cmp(big.NewInt(950_000)) != 0 {
		t.Fatalf("recovery is capped at collateral, got %s", result.Recovered)
	}
	if result.Shortfall.Cmp(big.NewInt(50_000)) != 0 {
		t.Fatalf("expected shortfall 50000, got %s", result.Shortfall)
	}
}

func TestLiquidateRejectsHealthyLoan(t *testing.T) {
	f := newEngineFixture(t)
	f.seedLoan(1, 700_000, 1_000_000, testStart+SecondsPerYear, 10)

	if _, err := f.engine.Liquidate(ctxFor(testLiquidator), testLiquidator, 1); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("expected ErrNotLiquidatable, got %v", err)
	}
	if f.registry.records[10].Owner != testBorrower {
		t.Fatalf("collateral must stay with borrower")
	}
	ok, err := f.engine.IsLiquidatable(1)
	if err != nil || ok {
		t.Fatalf("expected healthy loan, got %v (%v)", ok, err)
	}
}

func TestLiquidateOverdueLoan(t *testing.T) {
	f := newEngineFixture(t)
	f.seedLoan(1, 100_000, 1_000_000, testStart+3600, 10)

	f.now = testStart + 3601
	ok, err := f.engine.IsLiquidatable(1)
	if err != nil || !ok {
		t.Fatalf("expected overdue loan to be liquidatable, got %v (%v)", ok, err)
	}
	result, err := f.engine.Liquidate(ctxFor(testLiquidator), testLiquidator, 1)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.Debt.Cmp(big.NewInt(100_000)) <= 0 {
		t.Fatalf("expected interest accrued into debt, got %s", result.Debt)
	}
}

func TestLiquidationThresholdIsReadLive(t *testing.T) {
	f := newEngineFixture(t)
	f.seedLoan(1, 800_000, 1_000_000, testStart+SecondsPerYear, 10)
	if _, err := f.engine.Liquidate(ctxFor(testLiquidator), testLiquidator, 1); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("expected ErrNotLiquidatable, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.MaxLTV = 7_000
	cfg.LiquidationThreshold = 7_500
	if err := f.engine.SetConfig(ctxFor(testAdmin), cfg); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if _, err := f.engine.Liquidate(ctxFor(testLiquidator), testLiquidator, 1); err != nil {
		t.Fatalf("expected liquidation under lowered threshold, got %v", err)
	}
}

func TestLiquidateRequiresLiquidatorAuth(t *testing.T) {
	f := newEngineFixture(t)
	f.seedLoan(1, 900_000, 1_000_000, testStart+SecondsPerYear, 10)
	if _, err := f.engine.Liquidate(ctxFor(testStranger), testLiquidator, 1); err == nil {
		t.Fatalf("expected authorization failure")
	}
	if _, err := f.engine.Liquidate(ctxFor(testLiquidator), testLiquidator, 2); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected ErrLoanNotFound, got %v", err)
	}
}
