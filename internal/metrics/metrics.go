package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters for the reconciliation pipeline.
type Metrics struct {
	cyclesCompleted  prometheus.Counter
	eventsObserved   *prometheus.CounterVec
	eventsSkipped    prometheus.Counter
	payoutsSubmitted prometheus.Counter
	payoutRetries    prometheus.Counter
	payoutsStuck     prometheus.Counter
	completions      prometheus.Counter
	refundUpdates    prometheus.Counter
	errors           prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			cyclesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "crosslane_cycles_completed_total",
				Help: "Total number of reconciliation cycles completed",
			}),
			eventsObserved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "crosslane_events_observed_total",
				Help: "Total number of bridge events observed, by kind",
			}, []string{"kind"}),
			eventsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "crosslane_events_skipped_total",
				Help: "Total number of events skipped (already recorded or non-pending)",
			}),
			payoutsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "crosslane_payouts_submitted_total",
				Help: "Total number of payouts confirmed on the destination chain",
			}),
			payoutRetries: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "crosslane_payout_retries_total",
				Help: "Total number of payout submission retries",
			}),
			payoutsStuck: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "crosslane_payouts_stuck_total",
				Help: "Total number of transfers left pending after exhausting payout retries",
			}),
			completions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "crosslane_completions_total",
				Help: "Total number of complete() calls submitted on the source chain",
			}),
			refundUpdates: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "crosslane_refund_updates_total",
				Help: "Total number of records marked refunded",
			}),
			errors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "crosslane_errors_total",
				Help: "Total number of errors encountered",
			}),
		}
		prometheus.MustRegister(
			metrics.cyclesCompleted,
			metrics.eventsObserved,
			metrics.eventsSkipped,
			metrics.payoutsSubmitted,
			metrics.payoutRetries,
			metrics.payoutsStuck,
			metrics.completions,
			metrics.refundUpdates,
			metrics.errors,
		)
	})
	return metrics
}

// CycleCompleted increments the completed-cycles counter.
func (m *Metrics) CycleCompleted() {
	if m != nil {
		m.cyclesCompleted.Inc()
	}
}

// EventObserved increments the per-kind event counter.
func (m *Metrics) EventObserved(kind string) {
	if m != nil {
		m.eventsObserved.WithLabelValues(kind).Inc()
	}
}

// EventSkipped increments the skipped-events counter.
func (m *Metrics) EventSkipped() {
	if m != nil {
		m.eventsSkipped.Inc()
	}
}

// PayoutSubmitted increments the confirmed-payouts counter.
func (m *Metrics) PayoutSubmitted() {
	if m != nil {
		m.payoutsSubmitted.Inc()
	}
}

// PayoutRetry increments the payout-retries counter.
func (m *Metrics) PayoutRetry() {
	if m != nil {
		m.payoutRetries.Inc()
	}
}

// PayoutStuck increments the stuck-payouts counter.
func (m *Metrics) PayoutStuck() {
	if m != nil {
		m.payoutsStuck.Inc()
	}
}

// Completion increments the completions counter.
func (m *Metrics) Completion() {
	if m != nil {
		m.completions.Inc()
	}
}

// RefundUpdate increments the refund-updates counter.
func (m *Metrics) RefundUpdate() {
	if m != nil {
		m.refundUpdates.Inc()
	}
}

// Errors increments the errors counter.
func (m *Metrics) Errors() {
	if m != nil {
		m.errors.Inc()
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
