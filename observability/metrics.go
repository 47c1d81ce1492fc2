package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics records facade activity: one counter pair and a latency
// histogram, segmented by action and outcome.
type EscrowMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// Escrow returns the lazily-initialised metrics registry used to record
// escrow facade activity.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "realchain",
				Subsystem: "escrow",
				Name:      "requests_total",
				Help:      "Total escrow facade dispatches segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "realchain",
				Subsystem: "escrow",
				Name:      "errors_total",
				Help:      "Total escrow facade failures segmented by action and error kind.",
			}, []string{"action", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "realchain",
				Subsystem: "escrow",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for escrow facade dispatches.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
		}
		prometheus.MustRegister(escrowRegistry.requests, escrowRegistry.errors, escrowRegistry.latency)
	})
	return escrowRegistry
}

// Observe records one facade dispatch.
func (m *EscrowMetrics) Observe(action string, start time.Time, errKind string) {
	if m == nil {
		return
	}
	outcome := "ok"
	if errKind != "" {
		outcome = "error"
		m.errors.WithLabelValues(action, errKind).Inc()
	}
	m.requests.WithLabelValues(action, outcome).Inc()
	m.latency.WithLabelValues(action).Observe(time.Since(start).Seconds())
}
