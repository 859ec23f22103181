package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eventflow"

// Metrics holds the pipeline-level metrics every component reports into.
type Metrics struct {
	ComponentStatus    *prometheus.GaugeVec
	EventsReceived     *prometheus.CounterVec
	EventsSent         *prometheus.CounterVec
	EventsFinalized    *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
}

// NewMetrics creates the core pipeline metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=running, 2=draining, 3=failed)",
			},
			[]string{"component"},
		),

		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Events accepted by a component",
			},
			[]string{"component", "kind"},
		),

		EventsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "sent_total",
				Help:      "Events emitted by a component",
			},
			[]string{"component", "kind"},
		),

		EventsFinalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "finalized_total",
				Help:      "Terminal event outcomes reported by a component",
			},
			[]string{"component", "status"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Time spent handling one event array",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Errors by component and class",
			},
			[]string{"component", "class"},
		),
	}
}

// RecordComponentStatus updates a component's lifecycle gauge.
func (m *Metrics) RecordComponentStatus(component string, status int) {
	m.ComponentStatus.WithLabelValues(component).Set(float64(status))
}

// RecordReceived adds n events of kind to the received counter.
func (m *Metrics) RecordReceived(component, kind string, n int) {
	m.EventsReceived.WithLabelValues(component, kind).Add(float64(n))
}

// RecordSent adds n events of kind to the sent counter.
func (m *Metrics) RecordSent(component, kind string, n int) {
	m.EventsSent.WithLabelValues(component, kind).Add(float64(n))
}

// RecordFinalized adds n terminal outcomes.
func (m *Metrics) RecordFinalized(component, status string, n int) {
	m.EventsFinalized.WithLabelValues(component, status).Add(float64(n))
}

// RecordProcessingDuration records how long an operation took.
func (m *Metrics) RecordProcessingDuration(component, operation string, d time.Duration) {
	m.ProcessingDuration.WithLabelValues(component, operation).Observe(d.Seconds())
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, class string) {
	m.ErrorsTotal.WithLabelValues(component, class).Inc()
}
