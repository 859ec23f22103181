package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eventflow/metric"
)

type bufferMetrics struct {
	enqueued      prometheus.Counter
	dequeued      prometheus.Counter
	overflows     prometheus.Counter
	droppedEvents prometheus.Counter
	size          prometheus.Gauge
	utilization   prometheus.Gauge
}

func newBufferMetrics(registrar metric.MetricsRegistrar, component string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"component": component}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "buffer", Name: name, Help: help, ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventflow", Subsystem: "buffer", Name: name, Help: help, ConstLabels: labels,
		})
	}

	m := &bufferMetrics{
		enqueued:      counter("enqueued_total", "Batches accepted by the buffer"),
		dequeued:      counter("dequeued_total", "Batches handed to the consumer"),
		overflows:     counter("overflows_total", "Enqueue attempts that found the buffer full"),
		droppedEvents: counter("dropped_events_total", "Events shed by the overflow policy"),
		size:          gauge("size", "Batches currently held"),
		utilization:   gauge("utilization", "Held batches as a fraction of capacity"),
	}

	for name, c := range map[string]prometheus.Counter{
		"buffer_enqueued":       m.enqueued,
		"buffer_dequeued":       m.dequeued,
		"buffer_overflows":      m.overflows,
		"buffer_dropped_events": m.droppedEvents,
	} {
		if err := registrar.RegisterCounter(component, name, c); err != nil {
			return nil, err
		}
	}
	if err := registrar.RegisterGauge(component, "buffer_size", m.size); err != nil {
		return nil, err
	}
	if err := registrar.RegisterGauge(component, "buffer_utilization", m.utilization); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *bufferMetrics) setSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
