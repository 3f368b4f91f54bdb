package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nexum"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording API activity
// per protocol component.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by component, operation, and outcome.",
			}, []string{"component", "operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by component, operation, and status code.",
			}, []string{"component", "operation", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"component", "operation"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by rate limiting.",
			}, []string{"component", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(component, operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(component, operation, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(component, operation, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(component, operation).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(component, reason string) {
	if m == nil {
		return
	}
	if component == "" {
		component = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(component, reason).Inc()
}

// LendingMetrics bundles collectors describing protocol economics.
type LendingMetrics struct {
	receivables  *prometheus.CounterVec
	loans        *prometheus.CounterVec
	volume       *prometheus.CounterVec
	shortfall    prometheus.Counter
	utilization  prometheus.Gauge
	pauseEngaged *prometheus.GaugeVec
	commits      *prometheus.HistogramVec
}

// Lending returns the lazily-initialised protocol metrics registry.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			receivables: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "receivables",
				Name:      "transitions_total",
				Help:      "Receivable lifecycle transitions segmented by resulting status.",
			}, []string{"status"}),
			loans: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lending",
				Name:      "loan_events_total",
				Help:      "Loan lifecycle events segmented by kind.",
			}, []string{"kind"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "volume_total",
				Help:      "Base-asset volume moved through the vault segmented by flow.",
			}, []string{"flow"}),
			shortfall: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lending",
				Name:      "liquidation_shortfall_total",
				Help:      "Debt written off by liquidations because collateral did not cover it.",
			}),
			utilization: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "utilization_ratio",
				Help:      "Borrowed over deposits as last observed after a committed operation.",
			}),
			pauseEngaged: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "pause_engaged",
				Help:      "Set to 1 while a component's circuit breaker is engaged.",
			}, []string{"module"}),
			commits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "operation_duration_seconds",
				Help:      "Duration of protocol operations segmented by operation and outcome.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation", "outcome"}),
		}
		prometheus.MustRegister(
			lendingRegistry.receivables,
			lendingRegistry.loans,
			lendingRegistry.volume,
			lendingRegistry.shortfall,
			lendingRegistry.utilization,
			lendingRegistry.pauseEngaged,
			lendingRegistry.commits,
		)
	})
	return lendingRegistry
}

// RecordReceivable counts a receivable transition into status.
func (m *LendingMetrics) RecordReceivable(status string) {
	if m == nil {
		return
	}
	m.receivables.WithLabelValues(labelOrUnknown(status)).Inc()
}

// RecordLoan counts a loan lifecycle event.
func (m *LendingMetrics) RecordLoan(kind string) {
	if m == nil {
		return
	}
	m.loans.WithLabelValues(labelOrUnknown(kind)).Inc()
}

// AddVolume adds amount to the flow counter. Non-positive amounts are ignored.
func (m *LendingMetrics) AddVolume(flow string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.volume.WithLabelValues(labelOrUnknown(flow)).Add(bigToFloat(amount))
}

// AddShortfall accumulates written-off debt.
func (m *LendingMetrics) AddShortfall(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.shortfall.Add(bigToFloat(amount))
}

// SetUtilization records pool utilisation expressed in basis points.
func (m *LendingMetrics) SetUtilization(bps uint64) {
	if m == nil {
		return
	}
	m.utilization.Set(float64(bps) / 10_000)
}

// SetPause toggles the pause_engaged gauge for module.
func (m *LendingMetrics) SetPause(module string, engaged bool) {
	if m == nil {
		return
	}
	value := 0.0
	if engaged {
		value = 1
	}
	m.pauseEngaged.WithLabelValues(labelOrUnknown(module)).Set(value)
}

// ObserveOperation records the duration and outcome of a protocol operation.
func (m *LendingMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = "rejected"
	}
	m.commits.WithLabelValues(labelOrUnknown(operation), outcome).Observe(duration.Seconds())
}

func labelOrUnknown(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
