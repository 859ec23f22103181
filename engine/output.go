package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
)

// ErrClosed is returned by a sender after its source has finished.
var ErrClosed = errors.New("source sender closed")

type target struct {
	id string
	ch chan<- event.EventArray
}

// Output delivers a component's batches to every downstream consumer.
// With more than one consumer each receives its own clone; the clones
// share finalizers so the source sees one combined outcome.
type Output struct {
	id       string
	targets  []target
	recorder *recorder
}

func newOutput(id string, recorder *recorder) *Output {
	return &Output{id: id, recorder: recorder}
}

// NewOutput returns an unmetered Output feeding the given channels, for
// driving a transform outside a Pipeline.
func NewOutput(id string, consumers ...chan<- event.EventArray) *Output {
	o := newOutput(id, nil)
	for i, ch := range consumers {
		o.targets = append(o.targets, target{id: fmt.Sprintf("%s.%d", id, i), ch: ch})
	}
	return o
}

// Push sends batch downstream, blocking while a consumer is full. If ctx
// ends first every copy not yet handed over is finalized Dropped and
// ctx.Err() is returned. A component with no consumers drops its output.
func (o *Output) Push(ctx context.Context, batch event.EventArray) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	if len(o.targets) == 0 {
		batch.Finalize(event.Dropped)
		return nil
	}

	// Clone before the original leaves this goroutine.
	copies := make([]event.EventArray, len(o.targets))
	for i := range o.targets[:len(o.targets)-1] {
		copies[i] = batch.Clone()
	}
	copies[len(copies)-1] = batch

	for i, t := range o.targets {
		select {
		case t.ch <- copies[i]:
			o.recorder.received(t.id, batch)
		case <-ctx.Done():
			for _, c := range copies[i:] {
				c.Finalize(event.Dropped)
			}
			return ctx.Err()
		}
	}
	o.recorder.sent(o.id, batch.Kind(), batch.Len())
	return nil
}

// PushEvents rebatches a mixed sequence by kind, preserving order, and
// pushes each batch.
func (o *Output) PushEvents(ctx context.Context, events []event.Event) error {
	batches := event.Rebatch(events)
	for i, b := range batches {
		if err := o.Push(ctx, b); err != nil {
			for _, rest := range batches[i+1:] {
				rest.Finalize(event.Dropped)
			}
			return err
		}
	}
	return nil
}

// SourceSender is the bounded output of a source.
//
// Every event sent carries a finalizer rooted at the source: events that
// arrive without one get a batch notifier attached, so their outcome is
// always counted.
type SourceSender struct {
	out        *Output
	sourceID   string
	sourceType string

	mu     sync.RWMutex
	closed bool
}

func newSourceSender(out *Output, sourceID, sourceType string) *SourceSender {
	return &SourceSender{out: out, sourceID: sourceID, sourceType: sourceType}
}

// NewSourceSender returns a sender writing to out, for driving a source
// outside a Pipeline.
func NewSourceSender(out *Output, sourceID, sourceType string) *SourceSender {
	return newSourceSender(out, sourceID, sourceType)
}

// Send forwards batch downstream. When ctx ends or the sender is closed
// the batch is finalized Dropped and ctx.Err() or ErrClosed is returned.
func (s *SourceSender) Send(ctx context.Context, batch event.EventArray) error {
	_, err := s.send(ctx, batch, nil)
	return err
}

// SendAndWait sends batch and waits until every event in it resolves,
// returning the combined outcome.
func (s *SourceSender) SendAndWait(ctx context.Context, batch event.EventArray) (event.EventStatus, error) {
	notifier := event.NewBatchNotifier(nil)
	if _, err := s.send(ctx, batch, notifier); err != nil {
		return event.Dropped, err
	}
	return notifier.Wait(ctx)
}

func (s *SourceSender) send(ctx context.Context, batch event.EventArray, notifier *event.BatchNotifier) (*event.BatchNotifier, error) {
	if batch == nil || batch.Len() == 0 {
		if notifier != nil {
			notifier.Seal()
		}
		return notifier, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.attach(batch, notifier)
		batch.Finalize(event.Dropped)
		return notifier, ErrClosed
	}

	s.attach(batch, notifier)
	if err := s.out.Push(ctx, batch); err != nil {
		return notifier, err
	}
	return notifier, nil
}

// attach stamps provenance and roots untracked events at this source.
func (s *SourceSender) attach(batch event.EventArray, notifier *event.BatchNotifier) {
	var counted *event.BatchNotifier
	untracked := 0
	for _, e := range batch.Events() {
		md := e.Metadata()
		if md.SourceID() == "" {
			md.SetSource(s.sourceID, s.sourceType)
		}
		if md.Finalizers().Len() == 0 {
			if counted == nil {
				counted = event.NewBatchNotifier(func(status event.EventStatus) {
					s.out.recorder.finalized(s.sourceID, status, untracked)
				})
			}
			md.AddFinalizer(counted.NewFinalizer())
			untracked++
		}
		if notifier != nil {
			md.AddFinalizer(notifier.NewFinalizer())
		}
	}
	if counted != nil {
		counted.Seal()
	}
	if notifier != nil {
		notifier.Seal()
	}
}

func (s *SourceSender) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
