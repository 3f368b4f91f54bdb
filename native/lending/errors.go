package lending

import "errors"

var (
	errNilState    = errors.New("lending: state not configured")
	errNilRegistry = errors.New("lending: receivable registry not configured")
	errNilVault    = errors.New("lending: vault not configured")

	ErrLoanNotFound           = errors.New("lending: loan not found")
	ErrInvalidStatus          = errors.New("lending: invalid loan status")
	ErrNotBorrower            = errors.New("lending: caller is not the borrower")
	ErrLTVExceeded            = errors.New("lending: borrow amount exceeds max ltv")
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral")
	ErrNotLiquidatable        = errors.New("lending: loan is not liquidatable")
	ErrInvalidDuration        = errors.New("lending: invalid loan duration")
	ErrReceivableNotOwned     = errors.New("lending: receivable not owned by borrower")
	ErrReceivableNotActive    = errors.New("lending: receivable not active")
	ErrDuplicateReceivable    = errors.New("lending: duplicate receivable in request")
	ErrInvalidConfig          = errors.New("lending: invalid configuration")
	ErrInvalidAddress         = errors.New("lending: address required")
)
