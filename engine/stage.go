package engine

import (
	"context"
	"log/slog"

	"github.com/c360/eventflow/event"
)

// Source produces batches until ctx ends or its input is exhausted.
// Batches go out through sc.Out, which blocks while downstream is full.
// On cancellation a source stops producing and releases its resources; it
// must never finalize in-flight events as Delivered.
type Source interface {
	Run(ctx context.Context, sc SourceContext) error
}

// SourceContext is what the pipeline hands a running source.
type SourceContext struct {
	ID     string
	Out    *SourceSender
	Logger *slog.Logger
	// Acknowledgements asks the source to wait for each batch outcome
	// (SendAndWait) before acknowledging its own upstream.
	Acknowledgements bool
}

// Transform maps one batch to zero or more batches written to out.
//
// Events a transform discards must be finalized Dropped. Output that
// mixes kinds is pushed with Output.PushEvents, which rebatches it while
// keeping order.
type Transform interface {
	Transform(ctx context.Context, batch event.EventArray, out *Output) error
}

// TaskTransform owns its input loop, for transforms that keep state
// across batches or emit on a timer. Run returns once in is closed and
// any held state has been flushed to out.
type TaskTransform interface {
	Run(ctx context.Context, in <-chan event.EventArray, out *Output) error
}

// Sink consumes batches until in is closed and reports each event's
// outcome through its finalizers. A partial failure marks only the
// failed events Errored.
type Sink interface {
	Run(ctx context.Context, in <-chan event.EventArray) error
}

// transformTask runs a Transform as a TaskTransform.
type transformTask struct {
	id        string
	transform Transform
	recorder  *recorder
	logger    *slog.Logger
}

func (t *transformTask) Run(ctx context.Context, in <-chan event.EventArray, out *Output) error {
	for batch := range in {
		done := t.recorder.time(t.id, "transform")
		err := t.transform.Transform(ctx, batch, out)
		done()
		if err != nil {
			t.recorder.error(t.id, err)
			t.logger.Warn("Transform failed", "error", err, "kind", batch.Kind().String(), "events", batch.Len())
		}
	}
	return nil
}
