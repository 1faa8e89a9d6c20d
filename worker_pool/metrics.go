package worker_pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "snode_pool"

// Metrics holds the per-pool series. Every series carries a "pool" label.
type Metrics struct {
	Submitted *prometheus.CounterVec
	Rejected  *prometheus.CounterVec
	Completed *prometheus.CounterVec
	Panics    *prometheus.CounterVec
	Workers   *prometheus.GaugeVec
	Queued    *prometheus.GaugeVec
}

// NewMetrics builds the collectors and registers them with reg. A nil reg leaves them unregistered,
// which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      "submitted_total",
				Help:      "Count of tasks accepted by the pool.",
			},
			[]string{"pool"},
		),
		Rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      "rejected_total",
				Help:      "Count of tasks rejected because the pool was saturated or shut down.",
			},
			[]string{"pool", "reason"},
		),
		Completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      "completed_total",
				Help:      "Count of tasks that ran to completion, including ones that panicked.",
			},
			[]string{"pool"},
		),
		Panics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      "panics_total",
				Help:      "Count of tasks that panicked.",
			},
			[]string{"pool"},
		),
		Workers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      "workers",
				Help:      "Live worker goroutines.",
			},
			[]string{"pool"},
		),
		Queued: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      "queued",
				Help:      "Tasks waiting in the pool queue, sampled periodically.",
			},
			[]string{"pool"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Submitted, m.Rejected, m.Completed, m.Panics, m.Workers, m.Queued)
	}
	return m
}
