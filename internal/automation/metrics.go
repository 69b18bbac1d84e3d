package automation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects dispatch counters. A nil *Metrics records nothing.
type Metrics struct {
	dispatches  *prometheus.CounterVec
	completions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics registers the automation metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		dispatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaworkbench_automation_dispatches_total",
				Help: "Total number of automation dispatches submitted",
			},
			[]string{"algorithm"},
		),
		completions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaworkbench_automation_completions_total",
				Help: "Total number of automation completions by outcome",
			},
			[]string{"algorithm", "outcome"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qaworkbench_automation_run_duration_seconds",
				Help:    "Algorithm run duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"algorithm"},
		),
	}
}

func (m *Metrics) recordDispatch(algorithm string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(algorithm).Inc()
}

func (m *Metrics) recordCompletion(algorithm, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(algorithm, outcome).Inc()
	if elapsed > 0 {
		m.duration.WithLabelValues(algorithm).Observe(elapsed.Seconds())
	}
}
