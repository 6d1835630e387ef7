// Package metrics holds the Prometheus instruments for the sync service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcome labels.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Metrics holds all Prometheus metrics for the sync service.
type Metrics struct {
	SyncRuns     *prometheus.CounterVec
	SyncFailures *prometheus.CounterVec
	RowsStored   prometheus.Gauge
	SyncDuration prometheus.Histogram
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates the metrics on a caller-supplied registry. Tests use it
// to avoid duplicate registration on the global registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SyncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certsync_runs_total",
			Help: "Total sync runs by outcome.",
		}, []string{"outcome"}),
		SyncFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certsync_run_failures_total",
			Help: "Failed sync runs by error classification.",
		}, []string{"code"}),
		RowsStored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "certsync_rows_stored",
			Help: "Rows written by the most recent successful sync.",
		}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certsync_run_duration_seconds",
			Help:    "Duration of sync runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

// ObserveSuccess records a completed run.
func (m *Metrics) ObserveSuccess(rows int, elapsed time.Duration) {
	m.SyncRuns.WithLabelValues(OutcomeSucceeded).Inc()
	m.RowsStored.Set(float64(rows))
	m.SyncDuration.Observe(elapsed.Seconds())
}

// ObserveFailure records a failed run under its classification.
func (m *Metrics) ObserveFailure(code string, elapsed time.Duration) {
	m.SyncRuns.WithLabelValues(OutcomeFailed).Inc()
	m.SyncFailures.WithLabelValues(code).Inc()
	m.SyncDuration.Observe(elapsed.Seconds())
}

// ObserveRejected records a run that was refused because another was in
// flight.
func (m *Metrics) ObserveRejected() {
	m.SyncRuns.WithLabelValues(OutcomeRejected).Inc()
}
