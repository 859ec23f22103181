package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/value"
)

// sliceSource sends its batches and returns.
type sliceSource struct {
	batches []event.EventArray
	err     error
}

func (s *sliceSource) Run(ctx context.Context, sc SourceContext) error {
	for _, b := range s.batches {
		if err := sc.Out.Send(ctx, b); err != nil {
			return err
		}
	}
	return s.err
}

// endlessSource sends one-event batches until cancelled.
type endlessSource struct {
	mu   sync.Mutex
	sent int
}

func (s *endlessSource) Run(ctx context.Context, sc SourceContext) error {
	for {
		if err := sc.Out.Send(ctx, event.LogArray{event.NewLogMessage("tick")}); err != nil {
			return err
		}
		s.mu.Lock()
		s.sent++
		s.mu.Unlock()
	}
}

// collectSink records batches and finalizes them with status.
type collectSink struct {
	status event.EventStatus

	mu      sync.Mutex
	batches []event.EventArray
	events  int
}

func (s *collectSink) Run(ctx context.Context, in <-chan event.EventArray) error {
	for b := range in {
		s.mu.Lock()
		s.batches = append(s.batches, b)
		s.events += b.Len()
		s.mu.Unlock()
		b.Finalize(s.status)
	}
	return nil
}

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

func (s *collectSink) messages(t *testing.T) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, b := range s.batches {
		for _, e := range b.Events() {
			log, ok := e.(*event.LogEvent)
			require.True(t, ok)
			msg, _ := log.GetString(value.MustParsePath(event.MessageKey))
			out = append(out, msg)
		}
	}
	return out
}

// stuckSink never reads until cancelled.
type stuckSink struct{}

func (stuckSink) Run(ctx context.Context, _ <-chan event.EventArray) error {
	<-ctx.Done()
	return ctx.Err()
}

// trackedLogs builds one log batch whose events report into a notifier.
func trackedLogs(notifier *event.BatchNotifier, msgs ...string) event.LogArray {
	out := make(event.LogArray, len(msgs))
	for i, m := range msgs {
		out[i] = event.NewLogMessage(m, event.WithBatchNotifier(notifier))
	}
	return out
}

// outcome returns a notifier and a channel receiving its single outcome.
func outcome() (*event.BatchNotifier, chan event.EventStatus) {
	ch := make(chan event.EventStatus, 2)
	return event.NewBatchNotifier(func(s event.EventStatus) { ch <- s }), ch
}

var messagePath = value.MustParsePath(event.MessageKey)
