// Package bank implements the fungible asset ledger used to move liquidity
// between principals and the protocol vault.
package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"nexum/core/auth"
	"nexum/core/events"
	nativecommon "nexum/native/common"
)

var (
	errNilState = errors.New("bank: state not configured")

	// ErrInsufficientBalance is returned when the sender cannot cover a transfer.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrInvalidAsset is returned for an empty asset symbol.
	ErrInvalidAsset = errors.New("bank: asset symbol required")
)

type balanceState interface {
	Balance(addr [20]byte, symbol string) (*big.Int, error)
	SetBalance(addr [20]byte, symbol string, amount *big.Int) error
}

// Ledger tracks per-asset balances.
type Ledger struct {
	state   balanceState
	auth    auth.Authorizer
	emitter events.Emitter
}

// NewLedger constructs a ledger over the supplied balance store.
func NewLedger(state balanceState) *Ledger {
	return &Ledger{state: state, auth: auth.ContextAuthorizer{}, emitter: events.NoopEmitter{}}
}

// SetAuthorizer replaces the capability checker.
func (l *Ledger) SetAuthorizer(a auth.Authorizer) {
	if l == nil || a == nil {
		return
	}
	l.auth = a
}

// SetEmitter configures the event sink.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// Balance returns the holder's balance of asset.
func (l *Ledger) Balance(asset string, holder [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	symbol, err := normalize(asset)
	if err != nil {
		return nil, err
	}
	return l.state.Balance(holder, symbol)
}

// Transfer moves amount of asset from one principal to another. The sender
// must have authorized the operation. Nothing is written when the sender's
// balance is insufficient.
func (l *Ledger) Transfer(ctx context.Context, asset string, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	symbol, err := normalize(asset)
	if err != nil {
		return err
	}
	if !nativecommon.ValidAmount(amount) {
		return nativecommon.ErrZeroAmount
	}
	if err := l.auth.Require(ctx, from); err != nil {
		return err
	}
	fromBalance, err := l.state.Balance(from, symbol)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientBalance, fromBalance, amount)
	}
	if from == to {
		return nil
	}
	toBalance, err := l.state.Balance(to, symbol)
	if err != nil {
		return err
	}
	credited, err := nativecommon.CheckedAdd(toBalance, amount)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(from, symbol, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := l.state.SetBalance(to, symbol, credited); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Asset: symbol, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Mint credits new supply to holder. It is used by genesis funding and
// operator tooling; the protocol components never mint.
func (l *Ledger) Mint(asset string, holder [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	symbol, err := normalize(asset)
	if err != nil {
		return err
	}
	if !nativecommon.ValidAmount(amount) {
		return nativecommon.ErrZeroAmount
	}
	balance, err := l.state.Balance(holder, symbol)
	if err != nil {
		return err
	}
	credited, err := nativecommon.CheckedAdd(balance, amount)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(holder, symbol, credited); err != nil {
		return err
	}
	l.emitter.Emit(events.Mint{Asset: symbol, To: holder, Amount: new(big.Int).Set(amount)})
	return nil
}

func normalize(asset string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(asset))
	if symbol == "" {
		return "", ErrInvalidAsset
	}
	return symbol, nil
}
