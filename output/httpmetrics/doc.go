// Package httpmetrics provides a sink that sends counters and gauges to
// an HTTP metrics collector.
//
// Each metric becomes one JSON line: the name is the metric namespace (or
// default_namespace) joined to the name with a dot, the value is the
// counter or gauge scalar, and the tag named by host_key becomes the
// record host. Other metric types cannot be represented and are
// finalized Rejected.
//
// Metrics are partitioned by the "token" field of their metadata, falling
// back to the configured token, and each partition is batched up to
// batch.max_events or batch.timeout. Partition batches are posted
// concurrently by a worker pool with retries; a request that still fails
// finalizes only its own metrics Errored.
//
//	sinks:
//	  collector:
//	    type: http_metrics
//	    inputs: [http_metrics]
//	    options:
//	      endpoint: https://collector.example.com/services/collector
//	      token: ${COLLECTOR_TOKEN}
//	      default_namespace: eventflow
//	      batch:
//	        max_events: 500
//	        timeout: 2s
package httpmetrics
