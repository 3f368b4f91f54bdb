package lending

import (
	"math/big"

	nativecommon "nexum/native/common"
)

// LoanStatus represents the lifecycle of a loan.
type LoanStatus uint8

const (
	LoanActive LoanStatus = iota
	LoanRepaid
	LoanLiquidated
)

// Valid reports whether the status value is within the supported range.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanRepaid, LoanLiquidated:
		return true
	default:
		return false
	}
}

func (s LoanStatus) String() string {
	switch s {
	case LoanActive:
		return "active"
	case LoanRepaid:
		return "repaid"
	case LoanLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// Loan is a borrowing position secured by locked receivables.
type Loan struct {
	ID            uint64
	Borrower      [20]byte
	ReceivableIDs []uint64
	// CollateralValue is the discounted collateral value frozen at
	// origination. It is never re-marked.
	CollateralValue *big.Int
	Principal       *big.Int
	// InterestRate is the annual simple rate in basis points captured from
	// the configuration at origination.
	InterestRate       uint64
	AccruedInterest    *big.Int
	BorrowedAt         uint64
	LastInterestUpdate uint64
	DueDate            uint64
	Status             LoanStatus
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.ReceivableIDs = append([]uint64(nil), l.ReceivableIDs...)
	clone.CollateralValue = nativecommon.CopyAmount(l.CollateralValue)
	clone.Principal = nativecommon.CopyAmount(l.Principal)
	clone.AccruedInterest = nativecommon.CopyAmount(l.AccruedInterest)
	return &clone
}

// Debt returns principal plus accrued interest.
func (l *Loan) Debt() (*big.Int, error) {
	if l == nil {
		return big.NewInt(0), nil
	}
	return nativecommon.CheckedAdd(l.Principal, l.AccruedInterest)
}

// Settings holds the engine's admin identity and live configuration.
type Settings struct {
	Admin  [20]byte
	Config Config
}

// Counters tracks engine-wide totals.
type Counters struct {
	NextLoanID uint64
	TotalLoans uint64
	// TotalBorrowed is the cumulative principal originated. Repayments do
	// not decrease it.
	TotalBorrowed *big.Int
}

// Liquidation describes the economics applied when a loan was liquidated.
type Liquidation struct {
	LoanID     uint64
	Liquidator [20]byte
	Debt       *big.Int
	Penalty    *big.Int
	Recovered  *big.Int
	Shortfall  *big.Int
	// Seized lists the receivables whose title moved to the liquidator.
	Seized []uint64
}

// Health is a read-only projection of a loan at the current time.
type Health struct {
	LoanID          uint64
	Debt            *big.Int
	CollateralValue *big.Int
	LTV             *big.Int
	Liquidatable    bool
	Overdue         bool
}
