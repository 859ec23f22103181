// Package event defines the events that flow through a pipeline and the
// accounting that ties each event back to the source that produced it.
//
// # Events
//
// Event is a closed union of three variants:
//
//   - *LogEvent: a structured record whose payload is a value.Value map
//   - *TraceEvent: a span with the same shape as a log
//   - *Metric: a MetricSeries, a MetricKind and a MetricValue
//
// Log and trace constructors reject payloads whose root is not a map
// with errors.ErrMalformedPayload, so malformed data is refused where it
// is created instead of surfacing in a downstream stage.
//
// Events move between stages in homogeneous batches (EventArray). A
// transform that emits several kinds calls Rebatch, which splits the
// output into per-kind arrays without reordering.
//
// # Finalization
//
// Every event carries EventFinalizers in its metadata. A source creates
// one BatchNotifier per batch and attaches a finalizer per event:
//
//	batch := event.NewBatchNotifier(func(s event.EventStatus) {
//		if s != event.Delivered {
//			// redeliver
//		}
//	})
//	log := event.NewLogMessage(line, event.WithBatchNotifier(batch))
//	batch.Seal()
//
// Cloning an event for fan-out shares the handles. Each copy must reach
// exactly one terminal report (Delivered, Dropped, Errored, Rejected),
// made through EventArray.Finalize or EventMetadata.UpdateFinalizers.
// When the last copy reports, the worst status is delivered upstream.
//
// # Metrics
//
// MergeValues implements the aggregation algebra. It is commutative and
// associative for every variant except Absolute counters and gauges,
// where the later observation wins. MetricSet applies it per series.
//
// # Encoding
//
// EncodeArray and DecodeArray give the lossless binary form (msgpack
// tuples) used by buffers. MarshalEventJSON gives the text form used by
// file and HTTP sinks.
package event
