package event

import (
	"fmt"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/value"
)

// Kind identifies the event variant.
type Kind uint8

const (
	KindLog Kind = iota + 1
	KindMetric
	KindTrace
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindMetric:
		return "metric"
	case KindTrace:
		return "trace"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is the closed union of *LogEvent, *Metric and *TraceEvent. Code
// that switches over events should handle all three and treat anything
// else as unreachable.
type Event interface {
	Kind() Kind
	Metadata() *EventMetadata
	cloneEvent() Event
}

// Clone returns an independent copy of e for fan-out. The payload is
// deep-copied; the finalizer handles are shared so the copies report into
// one outcome.
func Clone(e Event) Event { return e.cloneEvent() }

// Finalize reports status for e and clears its finalizers.
func Finalize(e Event, status EventStatus) {
	e.Metadata().UpdateFinalizers(status)
}

// fields is the shared body of log and trace events: a payload whose root
// is always a map.
type fields struct {
	payload value.Value
	meta    EventMetadata
}

func newFields(component string, payload value.Value, opts []Option) (fields, error) {
	if payload.Kind() != value.KindMap {
		return fields{}, errors.WrapInvalid(
			fmt.Errorf("%w: payload root is %s, want map", errors.ErrMalformedPayload, payload.Kind()),
			component, "New", "validate payload")
	}
	return fields{payload: payload, meta: newMetadata(opts)}, nil
}

// Metadata returns the event metadata.
func (f *fields) Metadata() *EventMetadata { return &f.meta }

// Fields returns the payload. The returned map aliases the event; use
// Insert and Remove to mutate it.
func (f *fields) Fields() value.Value { return f.payload }

// Get returns the value at path, or nil when absent.
func (f *fields) Get(path value.Path) *value.Value { return f.payload.Get(path) }

// GetString returns the value at path rendered as a string when it holds
// bytes.
func (f *fields) GetString(path value.Path) (string, bool) {
	v := f.payload.Get(path)
	if v == nil {
		return "", false
	}
	return v.AsString()
}

// Select returns the lazy matches for a wildcard path.
func (f *fields) Select(path value.Path) *value.Matches { return f.payload.Select(path) }

// Insert stores v at path. Replacing the root with anything but a map
// fails with ErrMalformedPayload.
func (f *fields) Insert(path value.Path, v value.Value) (value.Value, bool, error) {
	if path.IsRoot() && v.Kind() != value.KindMap {
		return value.Value{}, false, errors.WrapInvalid(
			fmt.Errorf("%w: cannot replace root with %s", errors.ErrMalformedPayload, v.Kind()),
			"Event", "Insert", "replace root")
	}
	return f.payload.Insert(path, v)
}

// Remove deletes the value at path.
func (f *fields) Remove(path value.Path) (value.Value, bool) {
	return f.payload.Remove(path)
}

func (f *fields) clone() fields {
	return fields{payload: f.payload.Clone(), meta: f.meta.clone()}
}

// LogEvent is a structured log record.
type LogEvent struct {
	fields
}

// NewLog creates a log event. payload must be a map; anything else is
// rejected with ErrMalformedPayload so it never enters the pipeline.
func NewLog(payload value.Value, opts ...Option) (*LogEvent, error) {
	f, err := newFields("LogEvent", payload, opts)
	if err != nil {
		return nil, err
	}
	return &LogEvent{fields: f}, nil
}

// NewLogMessage creates a log event whose payload is {"message": msg}.
func NewLogMessage(msg string, opts ...Option) *LogEvent {
	m := value.NewMap()
	m.Set(MessageKey, value.String(msg))
	return &LogEvent{fields: fields{payload: value.FromMap(m), meta: newMetadata(opts)}}
}

// MessageKey is the payload field holding the raw log line.
const MessageKey = "message"

// Kind implements Event.
func (e *LogEvent) Kind() Kind { return KindLog }

// Clone returns a copy sharing finalizers with e.
func (e *LogEvent) Clone() *LogEvent { return &LogEvent{fields: e.fields.clone()} }

func (e *LogEvent) cloneEvent() Event { return e.Clone() }

// TraceEvent is a span or trace record. It has the same shape as a log.
type TraceEvent struct {
	fields
}

// NewTrace creates a trace event. payload must be a map.
func NewTrace(payload value.Value, opts ...Option) (*TraceEvent, error) {
	f, err := newFields("TraceEvent", payload, opts)
	if err != nil {
		return nil, err
	}
	return &TraceEvent{fields: f}, nil
}

// Kind implements Event.
func (e *TraceEvent) Kind() Kind { return KindTrace }

// Clone returns a copy sharing finalizers with e.
func (e *TraceEvent) Clone() *TraceEvent { return &TraceEvent{fields: e.fields.clone()} }

func (e *TraceEvent) cloneEvent() Event { return e.Clone() }
