// Package engine defines the stage contracts of a pipeline and runs them.
//
// # Stages
//
// A Source produces event batches, a Transform maps each batch to zero or
// more batches, and a Sink delivers batches and reports every event's
// outcome through its finalizers. Stateful transforms implement
// TaskTransform and own their input loop. FunctionTransform adapts a
// per-event function.
//
// # Wiring
//
// Components are registered with the ids of their inputs:
//
//	p, _ := engine.New(engine.DefaultConfig(), engine.Deps{Logger: logger, MetricsRegistry: registry})
//	_ = p.AddSource("udp_in", udpSource)
//	_ = p.AddTransform("only_errors", filter, "udp_in")
//	_ = p.AddSink("archive", fileSink, "udp_in")
//	_ = p.AddSink("alerts", httpSink, "only_errors")
//	err := p.Run(ctx)
//
// Every consumer has one bounded input channel. A component feeding
// several consumers sends each a clone of the batch; clones share
// finalizers, so the source learns one combined outcome where the worst
// status wins.
//
// # Backpressure and shutdown
//
// Sends block while the consumer's channel is full, so a slow sink
// throttles its transforms and eventually its sources. Cancelling the
// context passed to Run stops the sources first. Transforms and sinks
// keep draining until their inputs close or DrainTimeout expires; after
// that they are cancelled and any batch still queued is finalized
// Dropped, so no finalizer is left pending.
//
// # Validation
//
// Run validates the topology first: unknown inputs, components without
// inputs, sinks used as inputs and cycles are errors; an output nobody
// consumes is a warning. Validate returns the same result without
// running.
package engine
