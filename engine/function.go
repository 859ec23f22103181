package engine

import (
	"context"
	"log/slog"

	"github.com/c360/eventflow/event"
)

// EventFunc transforms one event, passing results to emit. It may emit
// the input itself, events derived from it (see EventMetadata.Derive), or
// nothing.
type EventFunc func(ctx context.Context, e event.Event, emit func(event.Event)) error

// FunctionTransform adapts a per-event function to Transform and keeps
// delivery accounting right:
//
//   - an input that produced nothing is finalized Dropped
//   - an input replaced by derived events releases its own reference
//   - an error finalizes the input, and anything it emitted, Errored
//
// Output keeps input order and is rebatched by kind.
type FunctionTransform struct {
	fn     EventFunc
	logger *slog.Logger
}

var _ Transform = (*FunctionTransform)(nil)

// NewFunctionTransform wraps fn. A nil logger uses the default.
func NewFunctionTransform(fn EventFunc, logger *slog.Logger) *FunctionTransform {
	if logger == nil {
		logger = slog.Default().With("component", "function-transform")
	}
	return &FunctionTransform{fn: fn, logger: logger}
}

// Transform applies the function to every event in batch.
func (f *FunctionTransform) Transform(ctx context.Context, batch event.EventArray, out *Output) error {
	return out.PushEvents(ctx, f.Apply(ctx, batch))
}

// Apply runs the function over batch with the same accounting as
// Transform and returns what it produced, in order, without pushing it.
func (f *FunctionTransform) Apply(ctx context.Context, batch event.EventArray) []event.Event {
	var produced []event.Event
	for _, e := range batch.Events() {
		var emitted []event.Event
		err := f.fn(ctx, e, func(o event.Event) { emitted = append(emitted, o) })
		if err != nil {
			f.logger.Debug("Event function failed", "error", err)
			for _, o := range emitted {
				event.Finalize(o, event.Errored)
			}
			event.Finalize(e, event.Errored)
			continue
		}

		kept := false
		for _, o := range emitted {
			if o == e {
				kept = true
				break
			}
		}
		switch {
		case kept:
		case len(emitted) == 0:
			event.Finalize(e, event.Dropped)
		default:
			e.Metadata().ReleaseFinalizers()
		}
		produced = append(produced, emitted...)
	}
	return produced
}
