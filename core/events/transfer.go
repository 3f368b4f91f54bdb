package events

import (
	"math/big"

	"nexum/core/types"
)

const (
	// TypeTransfer is emitted for asset ledger balance movements.
	TypeTransfer = "ledger.transfer"
	// TypeMint is emitted when the ledger credits new supply.
	TypeMint = "ledger.mint"
)

type Transfer struct {
	Asset  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	attrs["from"] = formatAddress(e.From)
	attrs["to"] = formatAddress(e.To)
	attrs["amount"] = formatAmount(e.Amount)
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type Mint struct {
	Asset  string
	To     [20]byte
	Amount *big.Int
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() *types.Event {
	return &types.Event{Type: TypeMint, Attributes: map[string]string{
		"asset":  normalizeAsset(e.Asset),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}
