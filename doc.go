// Package eventflow is an observability event pipeline: sources produce
// logs, metrics and traces, transforms reshape them and sinks deliver
// them, with every event's delivery outcome reported back to the source
// that created it.
//
// # Layout
//
// Data model:
//   - value: the dynamically typed Value tree and lookup Paths
//   - event: Log, Metric and Trace events, metadata, finalizers, EventArray
//     batches, the metric merge algebra and the binary codec
//
// Runtime:
//   - engine: Source, Transform and Sink contracts and the Pipeline that
//     wires them with bounded channels
//   - buffer: memory and JetStream buffers placed in front of sinks
//   - component, componentregistry: typed factories for configured
//     components
//   - config: YAML pipeline definitions built into an engine.Pipeline
//
// Components:
//   - input/udp: datagram socket source
//   - processor/filter, processor/remap, processor/logtometric
//   - output/file, output/httpmetrics
//
// Infrastructure:
//   - errors: classified errors (transient, invalid, fatal)
//   - metric, health: Prometheus self-telemetry and component health
//   - natsclient: the NATS connection behind JetStream buffers
//   - pkg/retry, pkg/worker, pkg/timestamp
//
// # Delivery outcomes
//
// Each event carries finalizers. Whoever ends an event's life marks it
// Delivered, Dropped, Errored or Rejected; derived events share their
// parent's finalizers and the worst status wins. A source with
// acknowledgements enabled waits for the outcome of each batch before
// reading more.
//
// # Running
//
//	eventflow --config pipeline.yaml --metrics-addr :9598
//
// See package config for the file format.
package eventflow
