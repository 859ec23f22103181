package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/c360/eventflow/value"
)

// EventMetadata travels with every event. It records where the event
// entered the pipeline and owns the event's finalizers.
//
// Metadata belongs to exactly one event. Cloning an event clones its
// metadata: the source fields and Value are copied while the finalizer
// handles are shared, so all copies feed a single delivery outcome.
type EventMetadata struct {
	id              uuid.UUID
	sourceID        string
	sourceType      string
	ingestTimestamp time.Time
	schemaKey       string
	value           value.Value
	finalizers      EventFinalizers
}

// Option configures the metadata of a newly created event.
type Option func(*EventMetadata)

// WithSource stamps the id and type of the ingesting source.
func WithSource(id, sourceType string) Option {
	return func(m *EventMetadata) {
		m.sourceID = id
		m.sourceType = sourceType
	}
}

// WithIngestTime overrides the ingest timestamp, which defaults to now.
func WithIngestTime(t time.Time) Option {
	return func(m *EventMetadata) {
		m.ingestTimestamp = t.UTC()
	}
}

// WithSchemaKey names the expected field layout of the payload.
func WithSchemaKey(key string) Option {
	return func(m *EventMetadata) {
		m.schemaKey = key
	}
}

// WithFinalizer attaches a finalizer handle. The event takes over the
// caller's reference.
func WithFinalizer(f *EventFinalizer) Option {
	return func(m *EventMetadata) {
		m.finalizers.Add(f)
	}
}

// WithBatchNotifier attaches a new finalizer from b.
func WithBatchNotifier(b *BatchNotifier) Option {
	return func(m *EventMetadata) {
		m.finalizers.Add(b.NewFinalizer())
	}
}

// WithMetadataValue sets a field of the metadata value map, such as the
// routing token a sink partitions by.
func WithMetadataValue(key string, v value.Value) Option {
	return func(m *EventMetadata) {
		_, _, _ = m.value.Insert(value.NewPath(value.Field(key)), v)
	}
}

func newMetadata(opts []Option) EventMetadata {
	m := EventMetadata{
		id:              uuid.New(),
		ingestTimestamp: time.Now().UTC(),
		value:           value.EmptyMap(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// ID returns the unique id assigned when the event was created. Clones
// keep the id of the original.
func (m *EventMetadata) ID() uuid.UUID { return m.id }

// SourceID returns the id of the source that ingested the event.
func (m *EventMetadata) SourceID() string { return m.sourceID }

// SourceType returns the type of the ingesting source, e.g. "socket".
func (m *EventMetadata) SourceType() string { return m.sourceType }

// SetSource replaces the source id and type.
func (m *EventMetadata) SetSource(id, sourceType string) {
	m.sourceID = id
	m.sourceType = sourceType
}

// IngestTimestamp returns when the event entered the pipeline.
func (m *EventMetadata) IngestTimestamp() time.Time { return m.ingestTimestamp }

// SchemaKey returns the schema key, if one was set.
func (m *EventMetadata) SchemaKey() (string, bool) {
	return m.schemaKey, m.schemaKey != ""
}

// SetSchemaKey replaces the schema key. An empty key clears it.
func (m *EventMetadata) SetSchemaKey(key string) { m.schemaKey = key }

// Value returns the metadata value map for in-place access.
func (m *EventMetadata) Value() *value.Value { return &m.value }

// Finalizers returns the event's finalizer set.
func (m *EventMetadata) Finalizers() *EventFinalizers { return &m.finalizers }

// AddFinalizer attaches a handle.
func (m *EventMetadata) AddFinalizer(f *EventFinalizer) { m.finalizers.Add(f) }

// TakeFinalizers moves the handles out of the metadata.
func (m *EventMetadata) TakeFinalizers() EventFinalizers { return m.finalizers.Take() }

// MergeFinalizers moves the handles of other into m.
func (m *EventMetadata) MergeFinalizers(other *EventMetadata) {
	m.finalizers.Merge(&other.finalizers)
}

// UpdateFinalizers reports status on every handle and clears them.
func (m *EventMetadata) UpdateFinalizers(status EventStatus) {
	m.finalizers.Update(status)
}

// ReleaseFinalizers gives up this event's references without reporting
// an outcome, for example when a transform replaced the event with
// derived events that share the same handles. If every reference is
// released this way the outcome resolves as Dropped.
func (m *EventMetadata) ReleaseFinalizers() {
	m.finalizers.Update(statusPending)
}

// Derive returns metadata for a new event produced from this one. The
// copy shares the finalizer handles, so the original's source is only
// notified once the derived events resolve too.
func (m *EventMetadata) Derive() EventMetadata {
	return m.clone()
}

// WithMetadata replaces the metadata wholesale, typically with the result
// of Derive.
func WithMetadata(md EventMetadata) Option {
	return func(m *EventMetadata) {
		*m = md
	}
}

func (m *EventMetadata) clone() EventMetadata {
	return EventMetadata{
		id:              m.id,
		sourceID:        m.sourceID,
		sourceType:      m.sourceType,
		ingestTimestamp: m.ingestTimestamp,
		schemaKey:       m.schemaKey,
		value:           m.value.Clone(),
		finalizers:      m.finalizers.share(),
	}
}
