package events

import (
	"math/big"
	"testing"
)

func TestBufferFlushForwardsInOrder(t *testing.T) {
	buf := NewBuffer()
	buf.Emit(VaultDeposit{Amount: big.NewInt(1)})
	buf.Emit(VaultWithdraw{Amount: big.NewInt(2)})

	var seen []string
	n := buf.Flush(EmitterFunc(func(e Event) { seen = append(seen, e.EventType()) }))
	if n != 2 {
		t.Fatalf("expected 2 flushed events, got %d", n)
	}
	if seen[0] != TypeVaultDeposit || seen[1] != TypeVaultWithdraw {
		t.Fatalf("unexpected order: %v", seen)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("buffer should be empty after flush")
	}
}

func TestBufferResetDropsEvents(t *testing.T) {
	buf := NewBuffer()
	buf.Emit(ModulePause{Module: "vault", Paused: true})
	buf.Reset()
	if n := buf.Flush(NoopEmitter{}); n != 0 {
		t.Fatalf("expected nothing to flush, got %d", n)
	}
}

func TestLoanBorrowedAttributes(t *testing.T) {
	var borrower [20]byte
	borrower[19] = 7
	evt := LoanBorrowed{
		LoanID:        3,
		Borrower:      borrower,
		ReceivableIDs: []uint64{1, 2},
		Principal:     big.NewInt(700_000),
		InterestRate:  1000,
	}.Event()
	if evt.Type != TypeLoanBorrowed {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attribute("receivables") != "1,2" {
		t.Fatalf("unexpected receivables attribute %q", evt.Attribute("receivables"))
	}
	if evt.Attribute("principal") != "700000" {
		t.Fatalf("unexpected principal %q", evt.Attribute("principal"))
	}
	if evt.Attribute("borrower") == "" {
		t.Fatalf("borrower attribute missing")
	}
}
