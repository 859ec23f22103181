package event

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/value"
)

// Binary form. Structs are encoded as msgpack arrays (tuples) so field
// names are not repeated per event. Finalizers are process-local and are
// not encoded; decoded events start without any.

const codecVersion uint8 = 1

type wireArray struct {
	_msgpack struct{} `msgpack:",as_array"`

	Version uint8
	Kind    uint8
	Events  []wireEvent
}

type wireEvent struct {
	_msgpack struct{} `msgpack:",as_array"`

	Kind   uint8
	Meta   wireMetadata
	Fields value.Value
	Metric *wireMetric
}

type wireMetadata struct {
	_msgpack struct{} `msgpack:",as_array"`

	ID         []byte
	SourceID   string
	SourceType string
	Ingest     time.Time
	SchemaKey  string
	Value      value.Value
}

type wireMetric struct {
	_msgpack struct{} `msgpack:",as_array"`

	Name      string
	Namespace *string
	Tags      map[string][]string
	Kind      uint8
	Timestamp *time.Time
	Value     wireMetricValue
}

type wireMetricValue struct {
	_msgpack struct{} `msgpack:",as_array"`

	Variant   string
	Scalar    float64
	Set       []string
	Statistic uint8
	Samples   []wireSample
	Buckets   []wireBucket
	Quantiles []wireQuantile
	Bins      []wireBin
	Count     uint64
	Min       float64
	Max       float64
	Sum       float64
}

type wireSample struct {
	_msgpack struct{} `msgpack:",as_array"`
	Value    float64
	Rate     uint32
}

type wireBucket struct {
	_msgpack   struct{} `msgpack:",as_array"`
	UpperLimit float64
	Count      uint64
}

type wireQuantile struct {
	_msgpack struct{} `msgpack:",as_array"`
	Quantile float64
	Value    float64
}

type wireBin struct {
	_msgpack struct{} `msgpack:",as_array"`
	Key      int32
	Count    uint64
}

// EncodeArray serializes a batch. The encoding is lossless for payloads,
// metric values and metadata other than finalizers.
func EncodeArray(a EventArray) ([]byte, error) {
	w := wireArray{Version: codecVersion, Kind: uint8(a.Kind())}
	for _, e := range a.Events() {
		we, err := toWire(e)
		if err != nil {
			return nil, err
		}
		w.Events = append(w.Events, we)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(&w); err != nil {
		return nil, errors.Wrap(err, "EventArray", "Encode", "msgpack encode")
	}
	return buf.Bytes(), nil
}

// DecodeArray reverses EncodeArray.
func DecodeArray(data []byte) (EventArray, error) {
	var w wireArray
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, malformed("EventArray", err)
	}
	if w.Version != codecVersion {
		return nil, malformed("EventArray", fmt.Errorf("unsupported codec version %d", w.Version))
	}
	events := make([]Event, 0, len(w.Events))
	for i := range w.Events {
		if w.Events[i].Kind != w.Kind {
			return nil, malformed("EventArray", fmt.Errorf("event %d has kind %d in array of kind %d",
				i, w.Events[i].Kind, w.Kind))
		}
		e, err := fromWire(&w.Events[i])
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if len(events) == 0 {
		return emptyArray(Kind(w.Kind))
	}
	return arrayOf(Kind(w.Kind), events), nil
}

// EncodeEvent serializes a single event.
func EncodeEvent(e Event) ([]byte, error) {
	we, err := toWire(e)
	if err != nil {
		return nil, err
	}
	data, err := msgpack.Marshal(&we)
	if err != nil {
		return nil, errors.Wrap(err, "Event", "Encode", "msgpack encode")
	}
	return data, nil
}

// DecodeEvent reverses EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var we wireEvent
	if err := msgpack.Unmarshal(data, &we); err != nil {
		return nil, malformed("Event", err)
	}
	return fromWire(&we)
}

func emptyArray(kind Kind) (EventArray, error) {
	switch kind {
	case KindLog:
		return LogArray{}, nil
	case KindMetric:
		return MetricArray{}, nil
	case KindTrace:
		return TraceArray{}, nil
	default:
		return nil, malformed("EventArray", fmt.Errorf("unknown kind %d", kind))
	}
}

func malformed(component string, err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err),
		component, "Decode", "msgpack decode")
}

func toWire(e Event) (wireEvent, error) {
	we := wireEvent{Kind: uint8(e.Kind()), Meta: metadataToWire(e.Metadata())}
	switch x := e.(type) {
	case *LogEvent:
		we.Fields = x.payload
	case *TraceEvent:
		we.Fields = x.payload
	case *Metric:
		wm, err := metricToWire(x)
		if err != nil {
			return wireEvent{}, err
		}
		we.Metric = &wm
	default:
		return wireEvent{}, errors.WrapInvalid(
			fmt.Errorf("%w: unknown event type %T", errors.ErrInvalidData, e), "Event", "Encode", "match kind")
	}
	return we, nil
}

func fromWire(we *wireEvent) (Event, error) {
	meta, err := metadataFromWire(&we.Meta)
	if err != nil {
		return nil, err
	}
	switch Kind(we.Kind) {
	case KindLog:
		f, err := newFields("LogEvent", we.Fields, nil)
		if err != nil {
			return nil, err
		}
		f.meta = meta
		return &LogEvent{fields: f}, nil
	case KindTrace:
		f, err := newFields("TraceEvent", we.Fields, nil)
		if err != nil {
			return nil, err
		}
		f.meta = meta
		return &TraceEvent{fields: f}, nil
	case KindMetric:
		if we.Metric == nil {
			return nil, malformed("Metric", fmt.Errorf("metric event without metric body"))
		}
		m, err := metricFromWire(we.Metric)
		if err != nil {
			return nil, err
		}
		m.meta = meta
		return m, nil
	default:
		return nil, malformed("Event", fmt.Errorf("unknown kind %d", we.Kind))
	}
}

func metadataToWire(m *EventMetadata) wireMetadata {
	id := m.id
	return wireMetadata{
		ID:         id[:],
		SourceID:   m.sourceID,
		SourceType: m.sourceType,
		Ingest:     m.ingestTimestamp,
		SchemaKey:  m.schemaKey,
		Value:      m.value,
	}
}

func metadataFromWire(w *wireMetadata) (EventMetadata, error) {
	id, err := uuid.FromBytes(w.ID)
	if err != nil {
		return EventMetadata{}, malformed("EventMetadata", err)
	}
	v := w.Value
	if v.IsNull() {
		v = value.EmptyMap()
	}
	return EventMetadata{
		id:              id,
		sourceID:        w.SourceID,
		sourceType:      w.SourceType,
		ingestTimestamp: w.Ingest.UTC(),
		schemaKey:       w.SchemaKey,
		value:           v,
	}, nil
}

// metricToWire refuses anything metricFromWire would refuse, so every
// encoded metric decodes.
func metricToWire(m *Metric) (wireMetric, error) {
	if err := m.Validate(); err != nil {
		return wireMetric{}, errors.Wrap(err, "Metric", "Encode", "validate")
	}
	w := wireMetric{
		Name:      m.series.Name,
		Namespace: m.series.Namespace,
		Kind:      uint8(m.kind),
		Timestamp: m.timestamp,
	}
	if len(m.series.Tags) > 0 {
		w.Tags = make(map[string][]string, len(m.series.Tags))
		for k, vals := range m.series.Tags {
			w.Tags[k] = []string(vals)
		}
	}

	v := wireMetricValue{Variant: variantName(m.value)}
	switch x := m.value.(type) {
	case Counter:
		v.Scalar = x.Value
	case Gauge:
		v.Scalar = x.Value
	case Set:
		v.Set = x.Sorted()
	case Distribution:
		v.Statistic = uint8(x.Statistic)
		v.Samples = make([]wireSample, len(x.Samples))
		for i, s := range x.Samples {
			v.Samples[i] = wireSample{Value: s.Value, Rate: s.Rate}
		}
	case AggregatedHistogram:
		v.Buckets = make([]wireBucket, len(x.Buckets))
		for i, b := range x.Buckets {
			v.Buckets[i] = wireBucket{UpperLimit: b.UpperLimit, Count: b.Count}
		}
		v.Count, v.Sum = x.Count, x.Sum
	case AggregatedSummary:
		v.Quantiles = make([]wireQuantile, len(x.Quantiles))
		for i, q := range x.Quantiles {
			v.Quantiles[i] = wireQuantile{Quantile: q.Quantile, Value: q.Value}
		}
		v.Count, v.Sum = x.Count, x.Sum
	case Sketch:
		v.Bins = make([]wireBin, len(x.Bins))
		for i, b := range x.Bins {
			v.Bins[i] = wireBin{Key: b.Key, Count: b.Count}
		}
		v.Count, v.Min, v.Max, v.Sum = x.Count, x.Min, x.Max, x.Sum
	default:
		return wireMetric{}, errors.WrapInvalid(
			fmt.Errorf("%w: unknown metric value %T", errors.ErrInvalidData, m.value),
			"Metric", "Encode", "match variant")
	}
	w.Value = v
	return w, nil
}

func metricFromWire(w *wireMetric) (*Metric, error) {
	m := &Metric{
		series: MetricSeries{Name: w.Name, Namespace: w.Namespace},
		kind:   MetricKind(w.Kind),
	}
	if len(w.Tags) > 0 {
		m.series.Tags = make(MetricTags, len(w.Tags))
		for k, vals := range w.Tags {
			m.series.Tags[k] = TagValueSet(vals)
		}
	}
	if w.Timestamp != nil {
		m.SetTimestamp(*w.Timestamp)
	}

	v := &w.Value
	switch v.Variant {
	case "counter":
		m.value = Counter{Value: v.Scalar}
	case "gauge":
		m.value = Gauge{Value: v.Scalar}
	case "set":
		m.value = NewSet(v.Set...)
	case "distribution":
		d := Distribution{Statistic: StatisticKind(v.Statistic)}
		if v.Samples != nil {
			d.Samples = make([]Sample, len(v.Samples))
			for i, s := range v.Samples {
				d.Samples[i] = Sample{Value: s.Value, Rate: s.Rate}
			}
		}
		m.value = d
	case "aggregated_histogram":
		h := AggregatedHistogram{Count: v.Count, Sum: v.Sum}
		if v.Buckets != nil {
			h.Buckets = make([]Bucket, len(v.Buckets))
			for i, b := range v.Buckets {
				h.Buckets[i] = Bucket{UpperLimit: b.UpperLimit, Count: b.Count}
			}
		}
		m.value = h
	case "aggregated_summary":
		s := AggregatedSummary{Count: v.Count, Sum: v.Sum}
		if v.Quantiles != nil {
			s.Quantiles = make([]Quantile, len(v.Quantiles))
			for i, q := range v.Quantiles {
				s.Quantiles[i] = Quantile{Quantile: q.Quantile, Value: q.Value}
			}
		}
		m.value = s
	case "sketch":
		s := Sketch{Count: v.Count, Min: v.Min, Max: v.Max, Sum: v.Sum}
		if v.Bins != nil {
			s.Bins = make([]SketchBin, len(v.Bins))
			for i, b := range v.Bins {
				s.Bins[i] = SketchBin{Key: b.Key, Count: b.Count}
			}
			sortBins(s.Bins)
		}
		m.value = s
	default:
		return nil, malformed("Metric", fmt.Errorf("unknown metric variant %q", v.Variant))
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
