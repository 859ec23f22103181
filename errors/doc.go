// Package errors provides classified error handling for eventflow.
//
// # Overview
//
// Every error that crosses a package boundary is either one of the sentinel
// variables declared here or wraps one. Errors carry one of three classes:
//
//   - Transient: temporary, retry recommended (delivery failures, timeouts)
//   - Invalid: bad input or configuration, do not retry (path conflicts,
//     malformed payloads, incompatible metric layouts)
//   - Fatal: unrecoverable, stop the stage
//
// # Core Taxonomy
//
// The data layer reports five conditions:
//
//	ErrPathConflict              // type mismatch while walking a path
//	ErrIncompatibleMetricLayout  // histogram/summary/sketch layouts differ
//	ErrMalformedPayload          // log/trace root is not a map
//	ErrEvaluationFailure         // a transform script failed for one event
//	ErrDeliveryFailure           // the transport rejected a request
//
// None of these stop a pipeline. Callers translate them into a per-event
// terminal status so one bad event cannot take down a batch.
//
// # Wrapping Pattern
//
// All wrapping follows "component.method: action failed: %w":
//
//	return errors.WrapInvalid(errors.ErrPathConflict, "Value", "Insert", "descend into bytes")
//
// Classification survives wrapping, and errors.Is/As work through the chain:
//
//	if errors.Is(err, errors.ErrIncompatibleMetricLayout) {
//	    // report, do not mutate the batch
//	}
package errors
