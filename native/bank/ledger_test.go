package bank

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"nexum/core/auth"
	"nexum/core/events"
	nativecommon "nexum/native/common"
)

type mockBalances struct {
	balances map[string]*big.Int
}

func newMockBalances() *mockBalances {
	return &mockBalances{balances: make(map[string]*big.Int)}
}

func (m *mockBalances) key(addr [20]byte, symbol string) string {
	return symbol + ":" + string(addr[:])
}

func (m *mockBalances) Balance(addr [20]byte, symbol string) (*big.Int, error) {
	if v, ok := m.balances[m.key(addr, symbol)]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockBalances) SetBalance(addr [20]byte, symbol string, amount *big.Int) error {
	m.balances[m.key(addr, symbol)] = new(big.Int).Set(amount)
	return nil
}

func makeAddress(suffix byte) [20]byte {
	var addr [20]byte
	addr[19] = suffix
	return addr
}

func TestTransferMovesBalance(t *testing.T) {
	ledger := NewLedger(newMockBalances())
	buf := events.NewBuffer()
	ledger.SetEmitter(buf)
	alice, bob := makeAddress(1), makeAddress(2)

	if err := ledger.Mint("usdc", alice, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	ctx := auth.WithPrincipals(context.Background(), alice)
	if err := ledger.Transfer(ctx, "USDC", alice, bob, big.NewInt(200)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := ledger.Balance("USDC", alice)
	bobBal, _ := ledger.Balance("usdc", bob)
	if aliceBal.Cmp(big.NewInt(300)) != 0 || bobBal.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected balances: alice %s bob %s", aliceBal, bobBal)
	}
	if got := len(buf.Events()); got != 2 {
		t.Fatalf("expected mint and transfer events, got %d", got)
	}
}

func TestTransferInsufficientBalanceHasNoEffect(t *testing.T) {
	state := newMockBalances()
	ledger := NewLedger(state)
	alice, bob := makeAddress(1), makeAddress(2)
	if err := ledger.Mint("USDC", alice, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	ctx := auth.WithPrincipals(context.Background(), alice)
	err := ledger.Transfer(ctx, "USDC", alice, bob, big.NewInt(11))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	aliceBal, _ := ledger.Balance("USDC", alice)
	bobBal, _ := ledger.Balance("USDC", bob)
	if aliceBal.Cmp(big.NewInt(10)) != 0 || bobBal.Sign() != 0 {
		t.Fatalf("balances changed: alice %s bob %s", aliceBal, bobBal)
	}
}

func TestTransferRequiresSender(t *testing.T) {
	ledger := NewLedger(newMockBalances())
	alice, bob := makeAddress(1), makeAddress(2)
	_ = ledger.Mint("USDC", alice, big.NewInt(10))
	ctx := auth.WithPrincipals(context.Background(), bob)
	err := ledger.Transfer(ctx, "USDC", alice, bob, big.NewInt(1))
	if !errors.Is(err, nativecommon.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := ledger.Transfer(ctx, "USDC", bob, alice, big.NewInt(0)); !errors.Is(err, nativecommon.ErrZeroAmount) {
		t.Fatalf("expected zero amount, got %v", err)
	}
}
