package event

import (
	"fmt"
	"math"
	"sort"

	"github.com/c360/eventflow/errors"
)

// MetricValue is the closed set of metric payloads: Counter, Gauge, Set,
// Distribution, AggregatedHistogram, AggregatedSummary and Sketch.
type MetricValue interface {
	// Variant returns a short name for logs and error messages.
	Variant() string
	metricValue()
}

// Counter is a monotonically accumulated count.
type Counter struct {
	Value float64
}

// Gauge is a point-in-time measurement.
type Gauge struct {
	Value float64
}

// Set is the collection of distinct strings seen.
type Set struct {
	Values map[string]struct{}
}

// NewSet returns a set holding values.
func NewSet(values ...string) Set {
	s := Set{Values: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.Values[v] = struct{}{}
	}
	return s
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s.Values))
	for v := range s.Values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// StatisticKind says how a Distribution should be summarized downstream.
type StatisticKind uint8

const (
	StatisticHistogram StatisticKind = iota
	StatisticSummary
)

// String returns the lowercase statistic name.
func (k StatisticKind) String() string {
	if k == StatisticSummary {
		return "summary"
	}
	return "histogram"
}

// Sample is one observed value with its sample rate.
type Sample struct {
	Value float64 `json:"value"`
	Rate  uint32  `json:"rate"`
}

// Distribution is a raw sequence of weighted samples.
type Distribution struct {
	Samples   []Sample      `json:"samples"`
	Statistic StatisticKind `json:"statistic"`
}

// Bucket is one non-cumulative histogram bucket: Count observations fell
// at or below UpperLimit and above the previous bucket's limit.
type Bucket struct {
	UpperLimit float64
	Count      uint64
}

// AggregatedHistogram is a pre-bucketed histogram.
type AggregatedHistogram struct {
	Buckets []Bucket
	Count   uint64
	Sum     float64
}

// Quantile is one quantile of a summary, Quantile in [0, 1].
type Quantile struct {
	Quantile float64 `json:"quantile"`
	Value    float64 `json:"value"`
}

// AggregatedSummary is a pre-computed quantile summary.
type AggregatedSummary struct {
	Quantiles []Quantile
	Count     uint64
	Sum       float64
}

func (Counter) Variant() string             { return "counter" }
func (Gauge) Variant() string               { return "gauge" }
func (Set) Variant() string                 { return "set" }
func (Distribution) Variant() string        { return "distribution" }
func (AggregatedHistogram) Variant() string { return "aggregated_histogram" }
func (AggregatedSummary) Variant() string   { return "aggregated_summary" }
func (Sketch) Variant() string              { return "sketch" }

func (Counter) metricValue()             {}
func (Gauge) metricValue()               {}
func (Set) metricValue()                 {}
func (Distribution) metricValue()        {}
func (AggregatedHistogram) metricValue() {}
func (AggregatedSummary) metricValue()   {}
func (Sketch) metricValue()              {}

func cloneMetricValue(v MetricValue) MetricValue {
	switch x := v.(type) {
	case Set:
		out := Set{Values: make(map[string]struct{}, len(x.Values))}
		for k := range x.Values {
			out.Values[k] = struct{}{}
		}
		return out
	case Distribution:
		return Distribution{Samples: append([]Sample(nil), x.Samples...), Statistic: x.Statistic}
	case AggregatedHistogram:
		return AggregatedHistogram{Buckets: append([]Bucket(nil), x.Buckets...), Count: x.Count, Sum: x.Sum}
	case AggregatedSummary:
		return AggregatedSummary{Quantiles: append([]Quantile(nil), x.Quantiles...), Count: x.Count, Sum: x.Sum}
	case Sketch:
		return x.clone()
	default:
		// Counter and Gauge are plain values.
		return v
	}
}

// metricFloats lists every float a value carries, for validation.
// checkFinite fails with ErrNonFiniteFloat when any float of v is NaN or
// infinite.
func checkFinite(v MetricValue) error {
	for _, f := range metricFloats(v) {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %s value %v", errors.ErrNonFiniteFloat, variantName(v), f)
		}
	}
	return nil
}

func metricFloats(v MetricValue) []float64 {
	switch x := v.(type) {
	case Counter:
		return []float64{x.Value}
	case Gauge:
		return []float64{x.Value}
	case Distribution:
		out := make([]float64, len(x.Samples))
		for i, s := range x.Samples {
			out[i] = s.Value
		}
		return out
	case AggregatedHistogram:
		out := []float64{x.Sum}
		for _, b := range x.Buckets {
			// +Inf is the conventional last bucket limit.
			if !math.IsInf(b.UpperLimit, 1) {
				out = append(out, b.UpperLimit)
			}
		}
		return out
	case AggregatedSummary:
		out := []float64{x.Sum}
		for _, q := range x.Quantiles {
			out = append(out, q.Quantile, q.Value)
		}
		return out
	case Sketch:
		return []float64{x.Min, x.Max, x.Sum}
	default:
		return nil
	}
}
