package httpmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eventflow/metric"
)

type sinkMetrics struct {
	requests   *prometheus.CounterVec
	eventsSent prometheus.Counter
	rejected   prometheus.Counter
	duration   prometheus.Histogram
}

// newSinkMetrics returns nil metrics when registry is nil.
func newSinkMetrics(registry *metric.MetricsRegistry, id string) (*sinkMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	labels := prometheus.Labels{"component": id}
	m := &sinkMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "http_metrics", Name: "requests_total",
			Help: "Requests by outcome", ConstLabels: labels,
		}, []string{"outcome"}),
		eventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "http_metrics", Name: "events_sent_total",
			Help: "Metrics accepted by the collector", ConstLabels: labels,
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "http_metrics", Name: "events_rejected_total",
			Help: "Events that cannot be sent", ConstLabels: labels,
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventflow", Subsystem: "http_metrics", Name: "request_duration_seconds",
			Help: "Time to deliver one request, retries included", ConstLabels: labels,
			Buckets: prometheus.DefBuckets,
		}),
	}
	if err := registry.RegisterCounterVec(id, "http_metrics_requests", m.requests); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(id, "http_metrics_events_sent", m.eventsSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(id, "http_metrics_events_rejected", m.rejected); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(id, "http_metrics_request_duration", m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *sinkMetrics) request(outcome string, elapsed time.Duration, events int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.duration.Observe(elapsed.Seconds())
	}
	m.eventsSent.Add(float64(events))
}

func (m *sinkMetrics) reject() {
	if m != nil {
		m.rejected.Inc()
	}
}
