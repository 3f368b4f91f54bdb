package common

import "errors"

// Errors shared by every protocol component.
var (
	ErrNotAuthorized      = errors.New("not authorized")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrOverflow           = errors.New("arithmetic overflow")
)
