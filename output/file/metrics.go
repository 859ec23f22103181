package file

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eventflow/metric"
)

type sinkMetrics struct {
	eventsWritten prometheus.Counter
	bytesWritten  prometheus.Counter
	writeErrors   prometheus.Counter
	rejectedTotal prometheus.Counter
}

// newSinkMetrics returns nil metrics when registry is nil.
func newSinkMetrics(registry *metric.MetricsRegistry, id string) (*sinkMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	labels := prometheus.Labels{"component": id}
	m := &sinkMetrics{
		eventsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "file", Name: "events_written_total",
			Help: "Events written and flushed", ConstLabels: labels,
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "file", Name: "bytes_written_total",
			Help: "Bytes written and flushed", ConstLabels: labels,
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "file", Name: "write_errors_total",
			Help: "Batches that failed to write", ConstLabels: labels,
		}),
		rejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "file", Name: "events_rejected_total",
			Help: "Events that could not be encoded", ConstLabels: labels,
		}),
	}
	for name, c := range map[string]prometheus.Counter{
		"file_events_written":  m.eventsWritten,
		"file_bytes_written":   m.bytesWritten,
		"file_write_errors":    m.writeErrors,
		"file_events_rejected": m.rejectedTotal,
	} {
		if err := registry.RegisterCounter(id, name, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *sinkMetrics) wrote(events, bytes int) {
	if m == nil {
		return
	}
	m.eventsWritten.Add(float64(events))
	m.bytesWritten.Add(float64(bytes))
}

func (m *sinkMetrics) writeError() {
	if m != nil {
		m.writeErrors.Inc()
	}
}

func (m *sinkMetrics) rejected() {
	if m != nil {
		m.rejectedTotal.Inc()
	}
}
