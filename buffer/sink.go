package buffer

import (
	"context"
	"log/slog"

	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
)

// Sink fronts an engine.Sink with a Buffer. Incoming batches are enqueued
// as they arrive and handed to the wrapped sink in order, so a slow sink
// fills the buffer instead of stalling its upstream.
type Sink struct {
	inner  engine.Sink
	buf    Buffer
	logger *slog.Logger
}

var _ engine.Sink = (*Sink)(nil)

// NewSink wraps inner with buf. The Sink owns buf and closes it once its
// input ends.
func NewSink(inner engine.Sink, buf Buffer, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default().With("component", "buffered-sink")
	}
	return &Sink{inner: inner, buf: buf, logger: logger}
}

// Run enqueues until in is closed, then waits for the wrapped sink to
// finish what the buffer still holds.
func (s *Sink) Run(ctx context.Context, in <-chan event.EventArray) error {
	feed := make(chan event.EventArray)
	innerDone := make(chan error, 1)
	go func() { innerDone <- s.inner.Run(ctx, feed) }()

	// Cancelled once the pump stops, which unblocks a waiting Enqueue.
	enqueueCtx, cancelEnqueue := context.WithCancel(ctx)
	defer cancelEnqueue()
	pumpDone := make(chan struct{})
	var innerErr error
	go func() {
		defer close(pumpDone)
		defer cancelEnqueue()
		innerErr = s.pump(ctx, feed, innerDone)
	}()

	for batch := range in {
		select {
		case <-pumpDone:
			batch.Finalize(event.Errored)
			continue
		default:
		}
		if err := s.buf.Enqueue(enqueueCtx, batch); err != nil {
			if errors.Is(err, errors.ErrBufferFull) {
				continue
			}
			s.logger.Warn("Buffer rejected batch", "events", batch.Len(), "error", err)
			batch.Finalize(event.Errored)
		}
	}

	if err := s.buf.Close(); err != nil {
		s.logger.Warn("Failed to close buffer", "error", err)
	}
	<-pumpDone

	// Durable buffers keep what was not consumed; memory does not.
	if m, ok := s.buf.(*Memory); ok {
		for _, batch := range m.Drain() {
			batch.Finalize(event.Dropped)
		}
	}
	return innerErr
}

// pump moves batches from the buffer to the wrapped sink and returns the
// wrapped sink's result.
func (s *Sink) pump(ctx context.Context, feed chan<- event.EventArray, innerDone <-chan error) error {
	for {
		batch, err := s.buf.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, errors.ErrChannelClosed) && ctx.Err() == nil {
				s.logger.Error("Buffer dequeue failed", "error", err)
			}
			close(feed)
			return <-innerDone
		}
		select {
		case feed <- batch:
		case err := <-innerDone:
			batch.Finalize(event.Errored)
			s.logger.Error("Buffered sink stopped early", "error", err)
			if err == nil {
				err = errors.WrapFatal(errors.ErrAlreadyStopped, "BufferedSink", "pump", "sink returned before input closed")
			}
			return err
		}
	}
}
