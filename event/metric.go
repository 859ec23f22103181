package event

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/c360/eventflow/errors"
)

// MetricKind says how a metric value is interpreted.
type MetricKind uint8

const (
	// Incremental values are deltas since the previous observation.
	Incremental MetricKind = iota
	// Absolute values are the current total.
	Absolute
)

// String returns the lowercase kind name.
func (k MetricKind) String() string {
	if k == Absolute {
		return "absolute"
	}
	return "incremental"
}

// TagValueSet is the ordered set of values of one tag. Most tags have a
// single value.
type TagValueSet []string

// Contains reports whether v is in the set.
func (s TagValueSet) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// MetricTags maps tag keys to their values.
type MetricTags map[string]TagValueSet

// Set replaces key with the single value v.
func (t MetricTags) Set(key, v string) {
	t[key] = TagValueSet{v}
}

// Insert adds v to the values of key, keeping insertion order and
// ignoring duplicates.
func (t MetricTags) Insert(key, v string) {
	if t[key].Contains(v) {
		return
	}
	t[key] = append(t[key], v)
}

// Get returns the last value of key.
func (t MetricTags) Get(key string) (string, bool) {
	vals := t[key]
	if len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

// Keys returns the tag keys in sorted order.
func (t MetricTags) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy.
func (t MetricTags) Clone() MetricTags {
	if t == nil {
		return nil
	}
	out := make(MetricTags, len(t))
	for k, v := range t {
		out[k] = append(TagValueSet(nil), v...)
	}
	return out
}

// Equal compares tag sets. Value order within a key does not matter.
func (t MetricTags) Equal(o MetricTags) bool {
	if len(t) != len(o) {
		return false
	}
	for k, vals := range t {
		ovals, ok := o[k]
		if !ok || len(vals) != len(ovals) {
			return false
		}
		for _, v := range vals {
			if !ovals.Contains(v) {
				return false
			}
		}
	}
	return true
}

// MetricSeries identifies the aggregation target of a metric.
type MetricSeries struct {
	Name      string
	Namespace *string
	Tags      MetricTags
}

// Equal reports whether two series are the same aggregation target.
func (s MetricSeries) Equal(o MetricSeries) bool {
	if s.Name != o.Name {
		return false
	}
	if (s.Namespace == nil) != (o.Namespace == nil) {
		return false
	}
	if s.Namespace != nil && *s.Namespace != *o.Namespace {
		return false
	}
	return s.Tags.Equal(o.Tags)
}

// Key renders a canonical identity: equal series produce equal keys.
func (s MetricSeries) Key() string {
	var b strings.Builder
	if s.Namespace != nil {
		b.WriteString(strconv.Quote(*s.Namespace))
		b.WriteByte('.')
	}
	b.WriteString(strconv.Quote(s.Name))
	b.WriteByte('{')
	for i, k := range s.Tags.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		vals := append([]string(nil), s.Tags[k]...)
		sort.Strings(vals)
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		for j, v := range vals {
			if j > 0 {
				b.WriteByte('|')
			}
			b.WriteString(strconv.Quote(v))
		}
	}
	b.WriteByte('}')
	return b.String()
}

// FullName joins namespace and name with a dot.
func (s MetricSeries) FullName() string {
	if s.Namespace == nil || *s.Namespace == "" {
		return s.Name
	}
	return *s.Namespace + "." + s.Name
}

func (s MetricSeries) clone() MetricSeries {
	out := MetricSeries{Name: s.Name, Tags: s.Tags.Clone()}
	if s.Namespace != nil {
		ns := *s.Namespace
		out.Namespace = &ns
	}
	return out
}

// Metric is a single observation of a series.
type Metric struct {
	series    MetricSeries
	kind      MetricKind
	value     MetricValue
	timestamp *time.Time
	meta      EventMetadata
}

// NewMetric creates a metric event. The value is not checked here; the
// codec refuses metrics that fail Validate and MergeValues refuses
// non-finite results.
func NewMetric(series MetricSeries, kind MetricKind, v MetricValue, opts ...Option) *Metric {
	return &Metric{series: series, kind: kind, value: v, meta: newMetadata(opts)}
}

// Kind implements Event.
func (m *Metric) Kind() Kind { return KindMetric }

// Metadata implements Event.
func (m *Metric) Metadata() *EventMetadata { return &m.meta }

// Series returns the series for in-place tag edits.
func (m *Metric) Series() *MetricSeries { return &m.series }

// Name returns the series name.
func (m *Metric) Name() string { return m.series.Name }

// Namespace returns the series namespace, if any.
func (m *Metric) Namespace() (string, bool) {
	if m.series.Namespace == nil {
		return "", false
	}
	return *m.series.Namespace, true
}

// Tags returns the series tags.
func (m *Metric) Tags() MetricTags { return m.series.Tags }

// MetricKind returns whether the value is a delta or a total.
func (m *Metric) MetricKind() MetricKind { return m.kind }

// Value returns the metric value.
func (m *Metric) Value() MetricValue { return m.value }

// SetValue replaces the metric value.
func (m *Metric) SetValue(v MetricValue) { m.value = v }

// Timestamp returns the observation time, if known.
func (m *Metric) Timestamp() (time.Time, bool) {
	if m.timestamp == nil {
		return time.Time{}, false
	}
	return *m.timestamp, true
}

// SetTimestamp sets the observation time.
func (m *Metric) SetTimestamp(t time.Time) {
	t = t.UTC()
	m.timestamp = &t
}

// Clone returns a copy sharing finalizers with m.
func (m *Metric) Clone() *Metric {
	out := &Metric{
		series: m.series.clone(),
		kind:   m.kind,
		value:  cloneMetricValue(m.value),
		meta:   m.meta.clone(),
	}
	if m.timestamp != nil {
		ts := *m.timestamp
		out.timestamp = &ts
	}
	return out
}

func (m *Metric) cloneEvent() Event { return m.Clone() }

// Validate checks the name and that every float in the value is finite.
func (m *Metric) Validate() error {
	if m.series.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Metric", "Validate", "check name")
	}
	if m.value == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Metric", "Validate", "check value")
	}
	if err := checkFinite(m.value); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%s: %w", m.series.Name, err), "Metric", "Validate", "check value")
	}
	return nil
}

// Merge folds other into m. Both must describe the same series; the
// resulting kind follows MergeValues and m takes over other's finalizers.
func (m *Metric) Merge(other *Metric) error {
	if !m.series.Equal(other.series) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: series %s and %s differ", errors.ErrInvalidData, m.series.Key(), other.series.Key()),
			"Metric", "Merge", "match series")
	}
	kind, merged, err := MergeValues(m.kind, m.value, other.kind, other.value)
	if err != nil {
		return errors.Wrap(err, "Metric", "Merge", "merge values")
	}
	m.kind = kind
	m.value = merged
	if other.timestamp != nil && (m.timestamp == nil || other.timestamp.After(*m.timestamp)) {
		ts := *other.timestamp
		m.timestamp = &ts
	}
	m.meta.MergeFinalizers(&other.meta)
	return nil
}
