package events

import (
	"math/big"

	"nexum/core/types"
)

const (
	TypeReceivableMinted      = "receivable.minted"
	TypeReceivableLocked      = "receivable.locked"
	TypeReceivableUnlocked    = "receivable.unlocked"
	TypeReceivableTransferred = "receivable.transferred"
	TypeReceivableSettled     = "receivable.settled"
	TypeReceivableDefaulted   = "receivable.defaulted"
	TypeReceivableMatured     = "receivable.matured"
)

// ReceivableMinted is emitted when a verified receivable enters the registry.
type ReceivableMinted struct {
	ID           uint64
	Creditor     [20]byte
	FaceValue    *big.Int
	Currency     string
	MaturityDate uint64
	RiskScore    uint64
}

func (ReceivableMinted) EventType() string { return TypeReceivableMinted }

func (e ReceivableMinted) Event() *types.Event {
	return &types.Event{Type: TypeReceivableMinted, Attributes: map[string]string{
		"id":           formatUint(e.ID),
		"creditor":     formatAddress(e.Creditor),
		"faceValue":    formatAmount(e.FaceValue),
		"currency":     normalizeAsset(e.Currency),
		"maturityDate": formatUint(e.MaturityDate),
		"riskScore":    formatUint(e.RiskScore),
	}}
}

// ReceivableStatusChanged covers lock, unlock, settle, default, and maturity
// transitions. Type carries the specific transition.
type ReceivableStatusChanged struct {
	Type  string
	ID    uint64
	Owner [20]byte
}

func (e ReceivableStatusChanged) EventType() string { return e.Type }

func (e ReceivableStatusChanged) Event() *types.Event {
	return &types.Event{Type: e.Type, Attributes: map[string]string{
		"id":    formatUint(e.ID),
		"owner": formatAddress(e.Owner),
	}}
}

// ReceivableTransferred is emitted when title moves between principals.
type ReceivableTransferred struct {
	ID   uint64
	From [20]byte
	To   [20]byte
}

func (ReceivableTransferred) EventType() string { return TypeReceivableTransferred }

func (e ReceivableTransferred) Event() *types.Event {
	return &types.Event{Type: TypeReceivableTransferred, Attributes: map[string]string{
		"id":   formatUint(e.ID),
		"from": formatAddress(e.From),
		"to":   formatAddress(e.To),
	}}
}
