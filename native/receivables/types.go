package receivables

import (
	"math/big"
	"strings"
)

// Status represents the lifecycle states of a tokenized receivable.
type Status uint8

const (
	StatusActive Status = iota
	StatusCollateralized
	StatusMatured
	StatusSettled
	StatusDefaulted
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCollateralized, StatusMatured, StatusSettled, StatusDefaulted:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusDefaulted
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCollateralized:
		return "collateralized"
	case StatusMatured:
		return "matured"
	case StatusSettled:
		return "settled"
	case StatusDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Receivable is a tokenized claim on a future debtor payment.
type Receivable struct {
	ID               uint64
	Owner            [20]byte
	OriginalCreditor [20]byte
	// DebtorHash is an opaque identifier of the obligor. The registry never
	// interprets it.
	DebtorHash   [32]byte
	FaceValue    *big.Int
	Currency     string
	IssuanceDate uint64
	MaturityDate uint64
	// ProofHash commits to the off-ledger evidence the verifier checked.
	ProofHash [32]byte
	Status    Status
	// RiskScore is the verifier's risk assessment in basis points. The
	// borrow engine discounts collateral value proportionally.
	RiskScore   uint64
	MetadataURI string
}

// Clone returns a deep copy of the receivable.
func (r *Receivable) Clone() *Receivable {
	if r == nil {
		return nil
	}
	clone := *r
	if r.FaceValue != nil {
		clone.FaceValue = new(big.Int).Set(r.FaceValue)
	} else {
		clone.FaceValue = big.NewInt(0)
	}
	return &clone
}

// MintParams captures the verifier-attested fields of a new receivable.
type MintParams struct {
	DebtorHash   [32]byte
	FaceValue    *big.Int
	Currency     string
	MaturityDate uint64
	ProofHash    [32]byte
	RiskScore    uint64
	MetadataURI  string
}

// Settings holds the registry's role assignments.
type Settings struct {
	Admin        [20]byte
	Verifier     [20]byte
	BorrowEngine [20]byte
}

// HasBorrowEngine reports whether the borrow engine capability was configured.
func (s *Settings) HasBorrowEngine() bool {
	return s != nil && s.BorrowEngine != [20]byte{}
}

// Counters tracks registry-wide totals.
type Counters struct {
	NextID      uint64
	TotalMinted uint64
	// TotalActive counts receivables not yet settled or defaulted.
	TotalActive uint64
}

// NormalizeCurrency returns the canonical uppercase asset symbol.
func NormalizeCurrency(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
