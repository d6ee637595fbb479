package phoenix

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes processor progress and failures.
type Metrics struct {
	Processed     *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	DerefFailures prometheus.Counter
	Duplicates    prometheus.Counter
	Pending       prometheus.Gauge
	AppliedSeq    prometheus.Gauge
}

// NewMetrics creates the processor metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phoenix_messages_processed_total",
			Help: "Messages applied to the indexes, by content type.",
		}, []string{"type"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phoenix_handler_failures_total",
			Help: "Messages whose handler failed, by content type.",
		}, []string{"type"}),
		DerefFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phoenix_dereference_failures_total",
			Help: "Log keys that could not be dereferenced.",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phoenix_duplicate_messages_total",
			Help: "Log entries skipped because their message was already applied.",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "phoenix_pending_operations",
			Help: "Log keys received but not yet fully applied.",
		}),
		AppliedSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "phoenix_applied_log_sequence",
			Help: "Sequence of the last log entry applied.",
		}),
	}
	reg.MustRegister(m.Processed, m.Failures, m.DerefFailures, m.Duplicates, m.Pending, m.AppliedSeq)
	return m
}
