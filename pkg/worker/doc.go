// Package worker provides a generic bounded worker pool.
//
// The HTTP metrics sink shards partition deliveries across a pool:
//
//	pool := worker.NewPool(4, 64, sink.deliverPartition,
//	    worker.WithMetrics[partitionJob](registry, "http_out"))
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(10 * time.Second)
//
//	err := pool.SubmitWait(ctx, job)
//
// Submit never blocks and reports ErrQueueFull; SubmitWait applies
// backpressure to the caller instead. Stop closes the queue and lets the
// workers finish what was already accepted.
package worker
