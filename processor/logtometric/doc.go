// Package logtometric derives metric events from log fields.
//
// Each configured extraction reads one field from every log and emits a
// counter, gauge, set or distribution named after it. Counters count
// occurrences unless increment_by_value adds the field's number instead.
// Tags are copied from other fields of the same log.
//
// Derived metrics share the log's finalizers. With keep_logs the log is
// forwarded ahead of its metrics; otherwise it is consumed. With
// aggregate, metrics of the same series within one input batch are merged
// into a single metric carrying all of their finalizers.
//
//	transforms:
//	  http_metrics:
//	    type: log_to_metric
//	    inputs: [parse]
//	    options:
//	      aggregate: true
//	      metrics:
//	        - type: counter
//	          field: status
//	          name: http_requests_total
//	          namespace: web
//	          tags: {status: status, host: host}
//	        - type: distribution
//	          field: latency_ms
package logtometric
