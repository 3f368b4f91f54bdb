package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"nexum/core/events"
)

type eventMetrics struct {
	transfers *prometheus.CounterVec
	published *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed protocol events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of ledger transfers segmented by asset.",
			}, []string{"asset"}),
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.transfers, eventRegistry.published)
	})
	return eventRegistry
}

// RecordTransfer increments the transfer counter for the supplied asset ticker.
func (m *eventMetrics) RecordTransfer(asset string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(labelAsset(asset)).Inc()
}

// RecordPublished counts an event of the given type.
func (m *eventMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(labelOrUnknown(eventType)).Inc()
}

// MetricsEmitter translates committed protocol events into prometheus
// updates. It is meant to sit in an events.Fanout next to durable sinks.
type MetricsEmitter struct {
	events  *eventMetrics
	lending *LendingMetrics
}

// NewMetricsEmitter binds the emitter to the process-wide registries.
func NewMetricsEmitter() *MetricsEmitter {
	return &MetricsEmitter{events: Events(), lending: Lending()}
}

// Emit implements events.Emitter.
func (m *MetricsEmitter) Emit(e events.Event) {
	if m == nil || e == nil {
		return
	}
	m.events.RecordPublished(e.EventType())
	switch ev := e.(type) {
	case events.Transfer:
		m.events.RecordTransfer(ev.Asset)
	case events.ReceivableMinted:
		m.lending.RecordReceivable("minted")
	case events.ReceivableStatusChanged:
		m.lending.RecordReceivable(strings.TrimPrefix(ev.Type, "receivable."))
	case events.VaultDeposit:
		m.lending.AddVolume("deposit", ev.Amount)
	case events.VaultWithdraw:
		m.lending.AddVolume("withdraw", ev.Amount)
	case events.VaultDisburse:
		m.lending.AddVolume("disburse", ev.Amount)
	case events.VaultRepay:
		m.lending.AddVolume("repay_principal", ev.Principal)
		m.lending.AddVolume("repay_interest", ev.Interest)
		m.lending.AddVolume("reserves", ev.ProtocolShare)
	case events.VaultReservesWithdrawn:
		m.lending.AddVolume("reserves_withdrawn", ev.Amount)
	case events.LoanBorrowed:
		m.lending.RecordLoan("borrowed")
	case events.LoanRepaid:
		if ev.Closed {
			m.lending.RecordLoan("closed")
		} else {
			m.lending.RecordLoan("partial_repayment")
		}
	case events.LoanLiquidated:
		m.lending.RecordLoan("liquidated")
		m.lending.AddShortfall(ev.Shortfall)
	case events.ModulePause:
		m.lending.SetPause(ev.Module, ev.Paused)
	}
}
