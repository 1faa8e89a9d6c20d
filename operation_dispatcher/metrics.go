package operation_dispatcher

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Dispatched *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: "snode_dispatch",
				Name:      "requests_total",
				Help:      "Count of inbound requests by opcode and outcome.",
			},
			[]string{"opcode", "outcome"},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: "snode_dispatch",
				Name:      "handler_duration_seconds",
				Help:      "Time spent in interceptors and processor, by pool.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"pool"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Dispatched, m.Latency)
	}
	return m
}
