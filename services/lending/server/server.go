// Package server exposes the lending protocol over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nexum/crypto"
	"nexum/observability"
	"nexum/observability/logging"
	"nexum/services/lending/archive"
	"nexum/services/lending/engine"
)

// EventLister serves archived protocol events.
type EventLister interface {
	List(ctx context.Context, q archive.Query) ([]archive.EventRecord, error)
}

// Service binds the HTTP surface to a lending engine.
type Service struct {
	engine       engine.Engine
	auth         *Authenticator
	limiter      *RateLimiter
	events       EventLister
	idempotency  IdempotencyStore
	logger       *slog.Logger
	maxBodyBytes int64
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRateLimiter throttles every route.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(s *Service) { s.limiter = limiter }
}

// WithEventArchive enables GET /v1/events.
func WithEventArchive(events EventLister) Option {
	return func(s *Service) { s.events = events }
}

// WithIdempotency stores mutation responses keyed by Idempotency-Key.
func WithIdempotency(store IdempotencyStore) Option {
	return func(s *Service) { s.idempotency = store }
}

// WithMaxBodyBytes bounds JSON request bodies.
func WithMaxBodyBytes(limit int64) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxBodyBytes = limit
		}
	}
}

// New constructs a new lending service instance.
func New(eng engine.Engine, authenticator *Authenticator, opts ...Option) *Service {
	s := &Service{
		engine:       eng,
		auth:         authenticator,
		logger:       slog.Default(),
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(v1 chi.Router) {
		// Reads are public.
		v1.Group(func(pub chi.Router) {
			pub.Use(s.limiter.Middleware)
			pub.Get("/receivables/stats", s.handleReceivableStats)
			pub.Get("/receivables/{id}", s.handleGetReceivable)
			pub.Get("/owners/{addr}/receivables", s.handleOwnerReceivables)
			pub.Get("/vault", s.handleGetVault)
			pub.Get("/vault/positions/{addr}", s.handleGetPosition)
			pub.Get("/loans/{id}", s.handleGetLoan)
			pub.Get("/loans/{id}/health", s.handleLoanHealth)
			pub.Get("/borrowers/{addr}/loans", s.handleBorrowerLoans)
			pub.Get("/lending/config", s.handleGetConfig)
			pub.Get("/events", s.handleListEvents)
		})

		v1.Group(func(priv chi.Router) {
			priv.Use(s.auth.Middleware)
			priv.Use(s.limiter.Middleware)
			priv.Use(withIdempotency(s.idempotency, s.logger))

			priv.Post("/receivables", s.handleMint)
			priv.Post("/receivables/{id}/transfer", s.handleTransferReceivable)
			priv.Post("/receivables/{id}/settle", s.handleSettle)
			priv.Post("/receivables/{id}/default", s.handleMarkDefault)
			priv.Post("/receivables/{id}/mature", s.handleMature)

			priv.Post("/vault/deposit", s.handleDeposit)
			priv.Post("/vault/withdraw", s.handleWithdraw)
			priv.Post("/vault/reserves/withdraw", s.handleWithdrawReserves)

			priv.Post("/loans", s.handleBorrow)
			priv.Post("/loans/{id}/repay", s.handleRepay)
			priv.Post("/loans/{id}/liquidate", s.handleLiquidate)
			priv.Post("/loans/{id}/accrue", s.handleAccrue)
			priv.Put("/lending/config", s.handleSetConfig)

			priv.Post("/admin/{module}/pause", s.handlePause(true))
			priv.Post("/admin/{module}/unpause", s.handlePause(false))
		})
	})

	return otelhttp.NewHandler(r, "lendingd")
}

// observe records per-route latency and status once chi has resolved the
// route pattern.
func (s *Service) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		observability.ModuleMetrics().Observe("lending", r.Method+" "+route, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, body := toStatus(err)
	attrs := []any{slog.String("operation", op), slog.String("path", r.URL.Path), slog.Int("status", status), slog.Any("error", err)}
	if principal, ok := PrincipalFrom(r.Context()); ok {
		attrs = append(attrs, slog.String("principal", logging.MaskAddress(crypto.FromRaw(principal).String())))
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("lending request failed", attrs...)
	} else {
		s.logger.Debug("lending request rejected", attrs...)
	}
	writeJSON(w, status, body)
}

// actor resolves an optional address field, defaulting to the bearer
// principal.
func actor(r *http.Request, field string) ([20]byte, error) {
	if field == "" {
		if principal, ok := PrincipalFrom(r.Context()); ok {
			return principal, nil
		}
	}
	return parseAddress(field)
}

func idsOrEmpty(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}

func (s *Service) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Error: "event archive disabled"})
		return
	}
	q := archive.Query{
		Type:   r.URL.Query().Get("type"),
		Module: r.URL.Query().Get("module"),
	}
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_argument", Error: "after must be an unsigned integer"})
			return
		}
		q.After = after
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_argument", Error: "limit must be a non-negative integer"})
			return
		}
		q.Limit = limit
	}
	records, err := s.events.List(r.Context(), q)
	if err != nil {
		s.writeError(w, r, "list_events", err)
		return
	}
	if records == nil {
		records = []archive.EventRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records})
}
