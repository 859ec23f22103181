package event

// MetricSet aggregates metrics by series. Inserting a metric whose series
// is already present merges it into the stored one, which also takes
// over its finalizers.
type MetricSet struct {
	order []string
	byKey map[string]*Metric
}

// NewMetricSet returns an empty set.
func NewMetricSet() *MetricSet {
	return &MetricSet{byKey: make(map[string]*Metric)}
}

// Insert adds m, merging with an existing metric of the same series. On a
// merge failure the set is unchanged and m keeps its finalizers.
func (s *MetricSet) Insert(m *Metric) error {
	key := m.series.Key()
	existing, ok := s.byKey[key]
	if !ok {
		s.byKey[key] = m
		s.order = append(s.order, key)
		return nil
	}
	return existing.Merge(m)
}

// Len returns the number of distinct series.
func (s *MetricSet) Len() int { return len(s.order) }

// Get returns the stored metric for series.
func (s *MetricSet) Get(series MetricSeries) (*Metric, bool) {
	m, ok := s.byKey[series.Key()]
	return m, ok
}

// Drain returns the metrics in first-insertion order and empties the set.
func (s *MetricSet) Drain() MetricArray {
	out := make(MetricArray, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	s.order = nil
	s.byKey = make(map[string]*Metric)
	return out
}
