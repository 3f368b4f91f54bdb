package engine

import "errors"

var (
	ErrUnauthorized    = errors.New("lending: unauthorized")
	ErrForbidden       = errors.New("lending: forbidden")
	ErrNotFound        = errors.New("lending: not found")
	ErrConflict        = errors.New("lending: conflicting state")
	ErrInvalidArgument = errors.New("lending: invalid argument")
	ErrRejected        = errors.New("lending: request rejected")
	ErrPaused          = errors.New("lending: operation paused")
	ErrInternal        = errors.New("lending: internal error")
)
