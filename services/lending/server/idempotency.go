package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"

	"nexum/crypto"
	"nexum/observability/logging"
	"nexum/services/lending/archive"
)

// HeaderIdempotencyKey lets clients retry mutations safely.
const HeaderIdempotencyKey = "Idempotency-Key"

// IdempotencyStore persists the first response produced for a key.
type IdempotencyStore interface {
	LookupIdempotency(ctx context.Context, key string) (*archive.IdempotencyKey, bool, error)
	SaveIdempotency(ctx context.Context, record *archive.IdempotencyKey) error
}

// withIdempotency replays stored responses for repeated keys. Keys are
// scoped to the authenticated principal. Only successful responses are
// stored so rejected requests can be retried.
func withIdempotency(store IdempotencyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if key == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			principal := ""
			if p, ok := PrincipalFrom(r.Context()); ok {
				principal = crypto.FromRaw(p).String()
			}
			scoped := principal + ":" + key
			record, ok, err := store.LookupIdempotency(r.Context(), scoped)
			if err != nil {
				logger.Error("idempotency lookup failed", logging.MaskField("idempotency_key", key), slog.Any("error", err))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal", Error: "internal error"})
				return
			}
			if ok {
				if record.Method != r.Method || record.Path != r.URL.Path {
					writeJSON(w, http.StatusConflict, errorResponse{Code: "conflict", Error: "idempotency key reused for a different request"})
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(record.Status)
				_, _ = w.Write([]byte(record.Response))
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			if recorder.status >= 300 {
				return
			}
			if err := store.SaveIdempotency(r.Context(), &archive.IdempotencyKey{
				Key:       scoped,
				Principal: principal,
				Method:    r.Method,
				Path:      r.URL.Path,
				Status:    recorder.status,
				Response:  recorder.buf.String(),
			}); err != nil {
				logger.Warn("idempotency save failed", slog.Any("error", err))
			}
		})
	}
}

// responseRecorder captures the status and body written by a handler.
type responseRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}
