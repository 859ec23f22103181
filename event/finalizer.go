package event

import (
	"context"
	"sync"
)

// EventFinalizer is a shared delivery-outcome handle for one originating
// event. Every copy of the event holds a reference; each reference reports
// exactly once, and when the last one has reported the worst status seen
// is passed to the notify callback.
//
// The handle points only at the callback, never back at events, so copies
// can be released in any order.
type EventFinalizer struct {
	mu      sync.Mutex
	pending int
	status  EventStatus
	done    bool
	notify  func(EventStatus)
}

// NewEventFinalizer returns a handle with one outstanding reference.
// notify runs once, outside the handle lock, on the goroutine that makes
// the final report.
func NewEventFinalizer(notify func(EventStatus)) *EventFinalizer {
	return &EventFinalizer{pending: 1, notify: notify}
}

func (f *EventFinalizer) retain() {
	f.mu.Lock()
	f.pending++
	f.mu.Unlock()
}

func (f *EventFinalizer) report(status EventStatus) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return
	}
	f.status = f.status.Worse(status)
	f.pending--
	if f.pending > 0 {
		f.mu.Unlock()
		return
	}
	f.done = true
	if f.status == statusPending {
		// Every reference was released without an outcome.
		f.status = Dropped
	}
	final := f.status
	notify := f.notify
	f.mu.Unlock()

	if notify != nil {
		notify(final)
	}
}

// Status returns the aggregated status and whether every reference has
// reported.
func (f *EventFinalizer) Status() (EventStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.done
}

// Pending returns the number of references that have not reported.
func (f *EventFinalizer) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// EventFinalizers is the set of handles owned by one event. It is normally
// a single handle; merging events (for example aggregating metrics) gives
// the result every input's handles.
//
// The zero value is an empty set.
type EventFinalizers struct {
	handles []*EventFinalizer
}

// Add attaches a handle. The caller transfers its reference.
func (fs *EventFinalizers) Add(f *EventFinalizer) {
	if f != nil {
		fs.handles = append(fs.handles, f)
	}
}

// Merge moves every handle of other into fs, leaving other empty.
func (fs *EventFinalizers) Merge(other *EventFinalizers) {
	fs.handles = append(fs.handles, other.handles...)
	other.handles = nil
}

// Take removes and returns all handles.
func (fs *EventFinalizers) Take() EventFinalizers {
	out := EventFinalizers{handles: fs.handles}
	fs.handles = nil
	return out
}

// Len returns the number of handles.
func (fs *EventFinalizers) Len() int { return len(fs.handles) }

// Update reports status on every handle and clears the set, so a second
// Update on the same event is a no-op.
func (fs *EventFinalizers) Update(status EventStatus) {
	handles := fs.handles
	fs.handles = nil
	for _, f := range handles {
		f.report(status)
	}
}

// share returns a new set holding an extra reference to every handle.
func (fs *EventFinalizers) share() EventFinalizers {
	if len(fs.handles) == 0 {
		return EventFinalizers{}
	}
	out := make([]*EventFinalizer, len(fs.handles))
	for i, f := range fs.handles {
		f.retain()
		out[i] = f
	}
	return EventFinalizers{handles: out}
}

// BatchNotifier is the acknowledgement root a source creates for one
// batch. Each event in the batch gets its own handle from NewFinalizer;
// once the batch is sealed and every handle has resolved, the callback
// fires exactly once with the worst status across the batch.
//
// An empty sealed batch resolves as Delivered.
type BatchNotifier struct {
	mu       sync.Mutex
	pending  int
	status   EventStatus
	sealed   bool
	resolved bool
	callback func(EventStatus)
	done     chan struct{}
}

// NewBatchNotifier returns an unsealed notifier. callback may be nil when
// the caller only uses Wait.
func NewBatchNotifier(callback func(EventStatus)) *BatchNotifier {
	return &BatchNotifier{
		pending:  1, // released by Seal
		callback: callback,
		done:     make(chan struct{}),
	}
}

// NewFinalizer returns a handle whose outcome feeds this batch. It must be
// called before Seal.
func (b *BatchNotifier) NewFinalizer() *EventFinalizer {
	b.mu.Lock()
	b.pending++
	b.mu.Unlock()
	return NewEventFinalizer(b.report)
}

// Seal marks the batch complete; no more finalizers will be created.
func (b *BatchNotifier) Seal() {
	b.mu.Lock()
	if b.sealed {
		b.mu.Unlock()
		return
	}
	b.sealed = true
	b.mu.Unlock()
	b.report(statusPending)
}

func (b *BatchNotifier) report(status EventStatus) {
	b.mu.Lock()
	if b.resolved {
		b.mu.Unlock()
		return
	}
	b.status = b.status.Worse(status)
	b.pending--
	if b.pending > 0 {
		b.mu.Unlock()
		return
	}
	if b.status == statusPending {
		b.status = Delivered
	}
	b.resolved = true
	final := b.status
	cb := b.callback
	b.mu.Unlock()

	close(b.done)
	if cb != nil {
		cb(final)
	}
}

// Done is closed once the batch outcome is known.
func (b *BatchNotifier) Done() <-chan struct{} { return b.done }

// Wait blocks until the batch resolves or ctx ends.
func (b *BatchNotifier) Wait(ctx context.Context) (EventStatus, error) {
	select {
	case <-b.done:
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.status, nil
	case <-ctx.Done():
		return statusPending, ctx.Err()
	}
}
