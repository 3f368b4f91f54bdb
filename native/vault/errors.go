package vault

import "errors"

var (
	errNilState  = errors.New("vault: state not configured")
	errNilLedger = errors.New("vault: asset ledger not configured")

	ErrNotBorrowEngine        = errors.New("vault: borrow engine not configured")
	ErrInsufficientDeposit    = errors.New("vault: deposit below minimum")
	ErrInsufficientShares     = errors.New("vault: insufficient shares")
	ErrInsufficientLiquidity  = errors.New("vault: insufficient liquidity")
	ErrMaxUtilizationExceeded = errors.New("vault: max utilization exceeded")
	ErrInvalidParams          = errors.New("vault: invalid parameters")
	ErrInvalidAddress         = errors.New("vault: address required")
)
