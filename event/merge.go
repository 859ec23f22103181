package event

import (
	"fmt"
	"sort"

	"github.com/c360/eventflow/errors"
)

// MergeValues combines two observations of the same series and returns
// the resulting kind and value. Neither input is modified.
//
//   - Counter, Gauge: Incremental+Incremental sums. Absolute+Absolute
//     keeps b, the later observation; this is the one case that is not
//     commutative. Mixing kinds fails with ErrMixedMetricKind.
//   - Set: union.
//   - AggregatedHistogram, AggregatedSummary: bucket limits or quantiles
//     must be identical, otherwise ErrIncompatibleMetricLayout; counts,
//     values, count and sum are added.
//   - Distribution: samples are concatenated and kept sorted by value and
//     rate so the result does not depend on merge order. Statistic kinds
//     must match, otherwise ErrIncompatibleMetricLayout.
//   - Sketch: bin counts are added key by key.
//
// The non-scalar variants describe sample populations rather than totals,
// so they combine the same way whatever their kind; the result is
// Absolute when either side is. Different variants fail with
// ErrMismatchedMetricValue, and a sum that overflows to infinity fails
// with ErrNonFiniteFloat.
func MergeValues(kindA MetricKind, a MetricValue, kindB MetricKind, b MetricValue) (MetricKind, MetricValue, error) {
	kind, merged, err := mergeValues(kindA, a, kindB, b)
	if err != nil {
		return kind, nil, err
	}
	if err := checkFinite(merged); err != nil {
		return kindA, nil, errors.WrapInvalid(err, "Metric", "MergeValues", "check result")
	}
	return kind, merged, nil
}

func mergeValues(kindA MetricKind, a MetricValue, kindB MetricKind, b MetricValue) (MetricKind, MetricValue, error) {
	switch x := a.(type) {
	case Counter:
		y, ok := b.(Counter)
		if !ok {
			return kindA, nil, mismatched(a, b)
		}
		kind, v, err := mergeScalar(kindA, x.Value, kindB, y.Value)
		return kind, Counter{Value: v}, err
	case Gauge:
		y, ok := b.(Gauge)
		if !ok {
			return kindA, nil, mismatched(a, b)
		}
		kind, v, err := mergeScalar(kindA, x.Value, kindB, y.Value)
		return kind, Gauge{Value: v}, err
	}

	kind := kindA
	if kindB == Absolute {
		kind = Absolute
	}

	switch x := a.(type) {
	case Set:
		y, ok := b.(Set)
		if !ok {
			return kindA, nil, mismatched(a, b)
		}
		out := NewSet()
		for v := range x.Values {
			out.Values[v] = struct{}{}
		}
		for v := range y.Values {
			out.Values[v] = struct{}{}
		}
		return kind, out, nil

	case Distribution:
		y, ok := b.(Distribution)
		if !ok {
			return kindA, nil, mismatched(a, b)
		}
		if x.Statistic != y.Statistic {
			return kindA, nil, incompatible("distribution statistic %s vs %s", x.Statistic, y.Statistic)
		}
		samples := make([]Sample, 0, len(x.Samples)+len(y.Samples))
		samples = append(samples, x.Samples...)
		samples = append(samples, y.Samples...)
		sort.SliceStable(samples, func(i, j int) bool {
			if samples[i].Value != samples[j].Value {
				return samples[i].Value < samples[j].Value
			}
			return samples[i].Rate < samples[j].Rate
		})
		return kind, Distribution{Samples: samples, Statistic: x.Statistic}, nil

	case AggregatedHistogram:
		y, ok := b.(AggregatedHistogram)
		if !ok {
			return kindA, nil, mismatched(a, b)
		}
		if !sameBuckets(x.Buckets, y.Buckets) {
			return kindA, nil, incompatible("histogram buckets %v vs %v", limits(x.Buckets), limits(y.Buckets))
		}
		buckets := make([]Bucket, len(x.Buckets))
		for i := range x.Buckets {
			buckets[i] = Bucket{UpperLimit: x.Buckets[i].UpperLimit, Count: x.Buckets[i].Count + y.Buckets[i].Count}
		}
		return kind, AggregatedHistogram{Buckets: buckets, Count: x.Count + y.Count, Sum: x.Sum + y.Sum}, nil

	case AggregatedSummary:
		y, ok := b.(AggregatedSummary)
		if !ok {
			return kindA, nil, mismatched(a, b)
		}
		if !sameQuantiles(x.Quantiles, y.Quantiles) {
			return kindA, nil, incompatible("summary quantiles differ (%d vs %d)", len(x.Quantiles), len(y.Quantiles))
		}
		quantiles := make([]Quantile, len(x.Quantiles))
		for i := range x.Quantiles {
			quantiles[i] = Quantile{Quantile: x.Quantiles[i].Quantile, Value: x.Quantiles[i].Value + y.Quantiles[i].Value}
		}
		return kind, AggregatedSummary{Quantiles: quantiles, Count: x.Count + y.Count, Sum: x.Sum + y.Sum}, nil

	case Sketch:
		y, ok := b.(Sketch)
		if !ok {
			return kindA, nil, mismatched(a, b)
		}
		return kind, x.Merge(y), nil
	}

	return kindA, nil, mismatched(a, b)
}

func mergeScalar(kindA MetricKind, a float64, kindB MetricKind, b float64) (MetricKind, float64, error) {
	switch {
	case kindA != kindB:
		return kindA, 0, errors.WrapInvalid(
			fmt.Errorf("%w: %s and %s", errors.ErrMixedMetricKind, kindA, kindB),
			"Metric", "MergeValues", "merge scalar")
	case kindA == Absolute:
		return Absolute, b, nil
	default:
		return Incremental, a + b, nil
	}
}

func mismatched(a, b MetricValue) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s and %s", errors.ErrMismatchedMetricValue, variantName(a), variantName(b)),
		"Metric", "MergeValues", "match variants")
}

func variantName(v MetricValue) string {
	if v == nil {
		return "<nil>"
	}
	return v.Variant()
}

func incompatible(format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: "+format, append([]any{errors.ErrIncompatibleMetricLayout}, args...)...),
		"Metric", "MergeValues", "match layout")
}

func sameBuckets(a, b []Bucket) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].UpperLimit != b[i].UpperLimit {
			return false
		}
	}
	return true
}

func limits(buckets []Bucket) []float64 {
	out := make([]float64, len(buckets))
	for i, b := range buckets {
		out[i] = b.UpperLimit
	}
	return out
}

func sameQuantiles(a, b []Quantile) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Quantile != b[i].Quantile {
			return false
		}
	}
	return true
}
