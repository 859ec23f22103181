// Package health tracks the running state of pipeline components.
//
// The engine marks each stage healthy when it starts, degraded when it
// stops and unhealthy when it fails; the NATS client reports its
// connection the same way. Monitor.Handler exposes the aggregate next to
// the Prometheus endpoint:
//
//	monitor := health.NewMonitor()
//	monitor.UpdateUnhealthy("archive", health.Sanitize(err.Error()))
//	status := monitor.AggregateHealth("eventflow") // unhealthy
//
// Aggregation takes the worst state: unhealthy over degraded over
// healthy.
package health
