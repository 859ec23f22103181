// Package metric provides the prometheus registry components report
// their self-telemetry into, plus an optional HTTP scrape endpoint.
//
// The registry is optional everywhere: components take a
// *MetricsRegistry through their Deps and skip recording when it is nil.
//
//	registry := metric.NewMetricsRegistry()
//	core := registry.CoreMetrics()
//	core.RecordReceived("udp_in", "log", 128)
//	core.RecordFinalized("http_out", "delivered", 128)
//
// Components with metrics of their own (buffers, worker pools) register
// them through MetricsRegistrar under their component id:
//
//	depth := prometheus.NewGauge(prometheus.GaugeOpts{Name: "queue_depth"})
//	err := registry.RegisterGauge("http_out", "queue_depth", depth)
//
// Registering the same component/metric pair twice fails with an
// invalid-class error; a name clash inside prometheus is reported the
// same way.
//
// Server exposes the registry at /metrics (OpenMetrics enabled) and a
// plain /health probe.
package metric
