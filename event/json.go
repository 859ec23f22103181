package event

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/c360/eventflow/errors"
)

// MarshalEventJSON renders an event for text sinks. Logs and traces render
// as their payload; metrics render as an object with name, namespace,
// tags, kind, timestamp and one key named after the value variant.
func MarshalEventJSON(e Event) ([]byte, error) {
	switch x := e.(type) {
	case *LogEvent:
		return x.payload.MarshalJSON()
	case *TraceEvent:
		return x.payload.MarshalJSON()
	case *Metric:
		return json.Marshal(x)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown event type %T", errors.ErrInvalidData, e), "Event", "MarshalJSON", "match kind")
	}
}

type metricJSON struct {
	Name      string         `json:"name"`
	Namespace *string        `json:"namespace,omitempty"`
	Tags      map[string]any `json:"tags,omitempty"`
	Kind      string         `json:"kind"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`

	Counter             *scalarJSON    `json:"counter,omitempty"`
	Gauge               *scalarJSON    `json:"gauge,omitempty"`
	Set                 *setJSON       `json:"set,omitempty"`
	Distribution        *Distribution  `json:"distribution,omitempty"`
	AggregatedHistogram *histogramJSON `json:"aggregated_histogram,omitempty"`
	AggregatedSummary   *summaryJSON   `json:"aggregated_summary,omitempty"`
	Sketch              *sketchJSON    `json:"sketch,omitempty"`
}

type scalarJSON struct {
	Value float64 `json:"value"`
}

type setJSON struct {
	Values []string `json:"values"`
}

type histogramJSON struct {
	Buckets []bucketJSON `json:"buckets"`
	Count   uint64       `json:"count"`
	Sum     float64      `json:"sum"`
}

// bucketJSON writes an infinite upper limit as the string "+Inf", which
// encoding/json cannot represent as a number.
type bucketJSON struct {
	UpperLimit any    `json:"upper_limit"`
	Count      uint64 `json:"count"`
}

type summaryJSON struct {
	Quantiles []Quantile `json:"quantiles"`
	Count     uint64     `json:"count"`
	Sum       float64    `json:"sum"`
}

type sketchJSON struct {
	Count uint64  `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Bins  int     `json:"bins"`
}

// MarshalJSON implements json.Marshaler.
func (m *Metric) MarshalJSON() ([]byte, error) {
	out := metricJSON{
		Name:      m.series.Name,
		Namespace: m.series.Namespace,
		Kind:      m.kind.String(),
		Timestamp: m.timestamp,
	}
	if len(m.series.Tags) > 0 {
		out.Tags = make(map[string]any, len(m.series.Tags))
		for k, vals := range m.series.Tags {
			if len(vals) == 1 {
				out.Tags[k] = vals[0]
			} else {
				out.Tags[k] = []string(vals)
			}
		}
	}
	switch x := m.value.(type) {
	case Counter:
		out.Counter = &scalarJSON{Value: x.Value}
	case Gauge:
		out.Gauge = &scalarJSON{Value: x.Value}
	case Set:
		out.Set = &setJSON{Values: x.Sorted()}
	case Distribution:
		out.Distribution = &x
	case AggregatedHistogram:
		h := &histogramJSON{Buckets: make([]bucketJSON, len(x.Buckets)), Count: x.Count, Sum: x.Sum}
		for i, b := range x.Buckets {
			h.Buckets[i] = bucketJSON{UpperLimit: b.UpperLimit, Count: b.Count}
			if math.IsInf(b.UpperLimit, 1) {
				h.Buckets[i].UpperLimit = "+Inf"
			}
		}
		out.AggregatedHistogram = h
	case AggregatedSummary:
		out.AggregatedSummary = &summaryJSON{Quantiles: x.Quantiles, Count: x.Count, Sum: x.Sum}
	case Sketch:
		out.Sketch = &sketchJSON{Count: x.Count, Min: x.Min, Max: x.Max, Sum: x.Sum, Avg: x.Avg(), Bins: len(x.Bins)}
	}
	return json.Marshal(out)
}

// MarshalJSON renders the statistic name.
func (k StatisticKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}
