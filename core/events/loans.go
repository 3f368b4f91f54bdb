package events

import (
	"math/big"

	"nexum/core/types"
)

const (
	TypeLoanBorrowed   = "loan.borrowed"
	TypeLoanRepaid     = "loan.repaid"
	TypeLoanLiquidated = "loan.liquidated"
	TypeLoanAccrued    = "loan.accrued"
)

// LoanBorrowed is emitted when a loan is originated.
type LoanBorrowed struct {
	LoanID          uint64
	Borrower        [20]byte
	ReceivableIDs   []uint64
	Principal       *big.Int
	CollateralValue *big.Int
	InterestRate    uint64
	DueDate         uint64
}

func (LoanBorrowed) EventType() string { return TypeLoanBorrowed }

func (e LoanBorrowed) Event() *types.Event {
	return &types.Event{Type: TypeLoanBorrowed, Attributes: map[string]string{
		"loanId":          formatUint(e.LoanID),
		"borrower":        formatAddress(e.Borrower),
		"receivables":     formatIDs(e.ReceivableIDs),
		"principal":       formatAmount(e.Principal),
		"collateralValue": formatAmount(e.CollateralValue),
		"interestRateBps": formatUint(e.InterestRate),
		"dueDate":         formatUint(e.DueDate),
	}}
}

// LoanRepaid is emitted for every repayment, partial or final.
type LoanRepaid struct {
	LoanID    uint64
	Borrower  [20]byte
	Principal *big.Int
	Interest  *big.Int
	Remaining *big.Int
	Closed    bool
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Event() *types.Event {
	closed := "false"
	if e.Closed {
		closed = "true"
	}
	return &types.Event{Type: TypeLoanRepaid, Attributes: map[string]string{
		"loanId":    formatUint(e.LoanID),
		"borrower":  formatAddress(e.Borrower),
		"principal": formatAmount(e.Principal),
		"interest":  formatAmount(e.Interest),
		"remaining": formatAmount(e.Remaining),
		"closed":    closed,
	}}
}

// LoanLiquidated is emitted when collateral is seized by a liquidator.
type LoanLiquidated struct {
	LoanID     uint64
	Borrower   [20]byte
	Liquidator [20]byte
	Debt       *big.Int
	Penalty    *big.Int
	Recovered  *big.Int
	Shortfall  *big.Int
}

func (LoanLiquidated) EventType() string { return TypeLoanLiquidated }

func (e LoanLiquidated) Event() *types.Event {
	return &types.Event{Type: TypeLoanLiquidated, Attributes: map[string]string{
		"loanId":     formatUint(e.LoanID),
		"borrower":   formatAddress(e.Borrower),
		"liquidator": formatAddress(e.Liquidator),
		"debt":       formatAmount(e.Debt),
		"penalty":    formatAmount(e.Penalty),
		"recovered":  formatAmount(e.Recovered),
		"shortfall":  formatAmount(e.Shortfall),
	}}
}

// LoanAccrued is emitted when interest is accrued on an explicit request.
type LoanAccrued struct {
	LoanID   uint64
	Interest *big.Int
	Accrued  *big.Int
}

func (LoanAccrued) EventType() string { return TypeLoanAccrued }

func (e LoanAccrued) Event() *types.Event {
	return &types.Event{Type: TypeLoanAccrued, Attributes: map[string]string{
		"loanId":   formatUint(e.LoanID),
		"interest": formatAmount(e.Interest),
		"accrued":  formatAmount(e.Accrued),
	}}
}
