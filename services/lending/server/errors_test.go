package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"nexum/services/lending/engine"
)

func TestToStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "unauthorized", err: engine.ErrUnauthorized, status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "forbidden", err: fmt.Errorf("wrap: %w", engine.ErrForbidden), status: http.StatusForbidden, code: "forbidden"},
		{name: "not found", err: fmt.Errorf("wrap: %w", engine.ErrNotFound), status: http.StatusNotFound, code: "not_found"},
		{name: "conflict", err: engine.ErrConflict, status: http.StatusConflict, code: "conflict"},
		{name: "invalid", err: engine.ErrInvalidArgument, status: http.StatusBadRequest, code: "invalid_argument"},
		{name: "rejected", err: engine.ErrRejected, status: http.StatusUnprocessableEntity, code: "rejected"},
		{name: "paused", err: engine.ErrPaused, status: http.StatusServiceUnavailable, code: "paused"},
		{name: "cancelled", err: context.Canceled, status: http.StatusServiceUnavailable, code: "unavailable"},
		{name: "internal", err: engine.ErrInternal, status: http.StatusInternalServerError, code: "internal"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			status, body := toStatus(tc.err)
			if status != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, status)
			}
			if body.Code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, body.Code)
			}
			if tc.status == http.StatusInternalServerError && body.Error != "internal error" {
				t.Fatalf("internal errors must not leak details, got %q", body.Error)
			}
		})
	}
}
