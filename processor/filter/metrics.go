package filter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eventflow/metric"
)

type filterMetrics struct {
	matched            prometheus.Counter
	dropped            prometheus.Counter
	evaluationDuration prometheus.Histogram
}

func newFilterMetrics(registry *metric.MetricsRegistry, id string) (*filterMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"component": id}
	m := &filterMetrics{
		matched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "filter", Name: "matched_total",
			Help: "Events that matched every rule", ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "filter", Name: "dropped_total",
			Help: "Events dropped by the filter", ConstLabels: labels,
		}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventflow", Subsystem: "filter", Name: "evaluation_duration_seconds",
			Help:        "Rule evaluation time per event",
			Buckets:     []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01},
			ConstLabels: labels,
		}),
	}

	if err := registry.RegisterCounter(id, "filter_matched", m.matched); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(id, "filter_dropped", m.dropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(id, "filter_evaluation_duration", m.evaluationDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *filterMetrics) recordEvaluation(matched bool, d time.Duration) {
	if m == nil {
		return
	}
	if matched {
		m.matched.Inc()
	} else {
		m.dropped.Inc()
	}
	m.evaluationDuration.Observe(d.Seconds())
}
