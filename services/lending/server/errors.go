package server

import (
	"context"
	"errors"
	"net/http"

	"nexum/services/lending/engine"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// toStatus maps engine sentinels onto an HTTP status, a stable code and the
// message returned to the client. Internal failures never leak details.
func toStatus(err error) (int, errorResponse) {
	switch {
	case err == nil:
		return http.StatusOK, errorResponse{}
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Code: "unauthorized", Error: "authentication required"}
	case errors.Is(err, engine.ErrForbidden):
		return http.StatusForbidden, errorResponse{Code: "forbidden", Error: err.Error()}
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, errorResponse{Code: "not_found", Error: err.Error()}
	case errors.Is(err, engine.ErrConflict):
		return http.StatusConflict, errorResponse{Code: "conflict", Error: err.Error()}
	case errors.Is(err, engine.ErrInvalidArgument):
		return http.StatusBadRequest, errorResponse{Code: "invalid_argument", Error: err.Error()}
	case errors.Is(err, engine.ErrRejected):
		return http.StatusUnprocessableEntity, errorResponse{Code: "rejected", Error: err.Error()}
	case errors.Is(err, engine.ErrPaused):
		return http.StatusServiceUnavailable, errorResponse{Code: "paused", Error: "operation paused"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errorResponse{Code: "unavailable", Error: "request cancelled"}
	default:
		return http.StatusInternalServerError, errorResponse{Code: "internal", Error: "internal error"}
	}
}
