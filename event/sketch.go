package event

import (
	"math"
	"sort"
)

// Sketch parameters. Every sketch shares them, so any two sketches can be
// merged without rebinning.
const (
	sketchRelativeAccuracy = 1.0 / 128
	sketchMinValue         = 1e-9
	sketchBinLimit         = 4096
)

var (
	sketchGamma   = (1 + sketchRelativeAccuracy) / (1 - sketchRelativeAccuracy)
	sketchLnGamma = math.Log(sketchGamma)
)

// SketchBin counts observations that mapped to Key. Key 0 holds values
// whose magnitude is below the sketch's minimum; positive keys hold
// positive values and negative keys their negative mirror.
type SketchBin struct {
	Key   int32
	Count uint64
}

// Sketch is a log-bucketed quantile sketch with bounded relative error.
// Merging adds bin counts key by key, which is commutative and
// associative, and keeps exact count, min, max and sum.
type Sketch struct {
	Bins  []SketchBin // sorted by Key, unique keys
	Count uint64
	Min   float64
	Max   float64
	Sum   float64
}

// NewSketch returns a sketch holding values.
func NewSketch(values ...float64) Sketch {
	var s Sketch
	for _, v := range values {
		s = s.InsertN(v, 1)
	}
	return s
}

func sketchKey(v float64) int32 {
	abs := math.Abs(v)
	if abs <= sketchMinValue {
		return 0
	}
	k := int32(math.Ceil(math.Log(abs/sketchMinValue)/sketchLnGamma)) + 1
	if v < 0 {
		return -k
	}
	return k
}

// sketchBinValue returns the representative of a key: the point with equal
// relative distance to the bin's bounds.
func sketchBinValue(key int32) float64 {
	if key == 0 {
		return 0
	}
	abs := key
	if abs < 0 {
		abs = -abs
	}
	upper := sketchMinValue * math.Pow(sketchGamma, float64(abs-1))
	v := 2 * upper / (1 + sketchGamma)
	if key < 0 {
		return -v
	}
	return v
}

// InsertN returns a copy of s with n observations of v added.
func (s Sketch) InsertN(v float64, n uint64) Sketch {
	if n == 0 {
		return s
	}
	out := s.clone()
	if out.Count == 0 {
		out.Min, out.Max = v, v
	} else {
		out.Min = math.Min(out.Min, v)
		out.Max = math.Max(out.Max, v)
	}
	out.Count += n
	out.Sum += v * float64(n)
	out.Bins = mergeBins(out.Bins, []SketchBin{{Key: sketchKey(v), Count: n}})
	return out
}

// Merge combines two sketches.
func (s Sketch) Merge(o Sketch) Sketch {
	switch {
	case o.Count == 0:
		return s.clone()
	case s.Count == 0:
		return o.clone()
	}
	return Sketch{
		Bins:  mergeBins(s.Bins, o.Bins),
		Count: s.Count + o.Count,
		Min:   math.Min(s.Min, o.Min),
		Max:   math.Max(s.Max, o.Max),
		Sum:   s.Sum + o.Sum,
	}
}

// Quantile estimates the q-quantile, q in [0, 1]. It returns false for an
// empty sketch.
func (s Sketch) Quantile(q float64) (float64, bool) {
	if s.Count == 0 {
		return 0, false
	}
	switch {
	case q <= 0:
		return s.Min, true
	case q >= 1:
		return s.Max, true
	}
	rank := q * float64(s.Count-1)
	var seen uint64
	for _, b := range s.Bins {
		seen += b.Count
		if float64(seen) > rank {
			v := sketchBinValue(b.Key)
			return math.Max(s.Min, math.Min(s.Max, v)), true
		}
	}
	return s.Max, true
}

// Avg returns the exact mean of the observations.
func (s Sketch) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

func (s Sketch) clone() Sketch {
	out := s
	out.Bins = append([]SketchBin(nil), s.Bins...)
	return out
}

// mergeBins adds two sorted bin lists and collapses the lowest keys once
// the result exceeds the bin limit.
func mergeBins(a, b []SketchBin) []SketchBin {
	out := make([]SketchBin, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i].Key < b[j].Key):
			out = append(out, a[i])
			i++
		case i >= len(a) || b[j].Key < a[i].Key:
			out = append(out, b[j])
			j++
		default:
			out = append(out, SketchBin{Key: a[i].Key, Count: a[i].Count + b[j].Count})
			i++
			j++
		}
	}
	if len(out) > sketchBinLimit {
		excess := len(out) - sketchBinLimit
		var folded uint64
		for _, bin := range out[:excess+1] {
			folded += bin.Count
		}
		out[excess].Count = folded
		out = out[excess:]
	}
	return out
}

func sortBins(bins []SketchBin) {
	sort.Slice(bins, func(i, j int) bool { return bins[i].Key < bins[j].Key })
}
