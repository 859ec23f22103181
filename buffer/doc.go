// Package buffer holds event batches between pipeline stages.
//
// Buffer is the boundary: Enqueue accepts a batch or signals
// backpressure, Dequeue hands batches out in order. Two implementations
// exist.
//
// Memory is a bounded ring with an overflow policy. Block (the default)
// makes Enqueue wait for space, DropOldest evicts the oldest batch and
// DropNewest sheds the incoming one. Shed batches are finalized Dropped
// so their sources learn the outcome.
//
//	buf, err := buffer.NewMemory(64,
//	    buffer.WithOverflowPolicy(buffer.DropOldest),
//	    buffer.WithMetrics(registry, "http_out"))
//
// JetStream persists each batch as one message on a NATS stream and
// consumes it through a durable consumer with explicit acknowledgement.
// The message is acknowledged only when the dequeued events resolve, so
// a consumer that crashes before delivery sees the batch again.
package buffer
