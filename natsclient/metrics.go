package natsclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eventflow/metric"
)

const metricsComponent = "nats"

type clientMetrics struct {
	connected      prometheus.Gauge
	reconnects     prometheus.Counter
	connectFailure prometheus.Counter
}

func newClientMetrics(registry *metric.MetricsRegistry) (*clientMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &clientMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventflow",
			Subsystem: "nats",
			Name:      "connected",
			Help:      "1 while the NATS connection is up",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow",
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Successful reconnections",
		}),
		connectFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow",
			Subsystem: "nats",
			Name:      "connect_failures_total",
			Help:      "Failed initial connection attempts",
		}),
	}
	if err := registry.RegisterGauge(metricsComponent, "connected", m.connected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsComponent, "reconnects_total", m.reconnects); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsComponent, "connect_failures_total", m.connectFailure); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *clientMetrics) status(s ConnectionStatus) {
	if m == nil {
		return
	}
	if s == StatusConnected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *clientMetrics) reconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *clientMetrics) connectFailed() {
	if m == nil {
		return
	}
	m.connectFailure.Inc()
}
