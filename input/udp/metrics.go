package udp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eventflow/metric"
)

// sourceMetrics are the socket-level counters of one UDP source.
type sourceMetrics struct {
	datagramsReceived prometheus.Counter
	bytesReceived     prometheus.Counter
	framesDiscarded   *prometheus.CounterVec
	socketErrors      prometheus.Counter
	lastActivity      prometheus.Gauge
}

// newSourceMetrics registers the source's metrics. A nil registry
// disables them.
func newSourceMetrics(registry *metric.MetricsRegistry, id string) (*sourceMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"component": id}
	m := &sourceMetrics{
		datagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "udp", Name: "datagrams_received_total",
			Help: "Datagrams read from the socket", ConstLabels: labels,
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "udp", Name: "bytes_received_total",
			Help: "Bytes read from the socket", ConstLabels: labels,
		}),
		framesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "udp", Name: "frames_discarded_total",
			Help: "Frames discarded before becoming events", ConstLabels: labels,
		}, []string{"reason"}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "udp", Name: "socket_errors_total",
			Help: "Socket read errors", ConstLabels: labels,
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventflow", Subsystem: "udp", Name: "last_activity_timestamp_seconds",
			Help: "Unix time of the last datagram", ConstLabels: labels,
		}),
	}

	if err := registry.RegisterCounter(id, "udp_datagrams_received", m.datagramsReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(id, "udp_bytes_received", m.bytesReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(id, "udp_frames_discarded", m.framesDiscarded); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(id, "udp_socket_errors", m.socketErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(id, "udp_last_activity", m.lastActivity); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *sourceMetrics) datagram(n int, at time.Time) {
	if m == nil {
		return
	}
	m.datagramsReceived.Inc()
	m.bytesReceived.Add(float64(n))
	m.lastActivity.Set(float64(at.Unix()))
}

func (m *sourceMetrics) discarded(reason string) {
	if m == nil {
		return
	}
	m.framesDiscarded.WithLabelValues(reason).Inc()
}

func (m *sourceMetrics) socketError() {
	if m == nil {
		return
	}
	m.socketErrors.Inc()
}
