package receivables

import "errors"

var (
	errNilState = errors.New("receivables: state not configured")

	ErrNotVerifier         = errors.New("receivables: caller is not the verifier")
	ErrNotOwner            = errors.New("receivables: caller does not own receivable")
	ErrNotBorrowEngine     = errors.New("receivables: borrow engine not configured")
	ErrReceivableNotFound  = errors.New("receivables: receivable not found")
	ErrInvalidStatus       = errors.New("receivables: invalid status for transition")
	ErrTransferNotAllowed  = errors.New("receivables: transfer requires active status")
	ErrInvalidFaceValue    = errors.New("receivables: face value must be positive")
	ErrInvalidMaturityDate = errors.New("receivables: maturity date must be in the future")
	ErrNotMatured          = errors.New("receivables: maturity date not reached")
	ErrInvalidCurrency     = errors.New("receivables: currency required")
	ErrInvalidAddress      = errors.New("receivables: address required")
)
