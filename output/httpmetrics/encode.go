package httpmetrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
)

// record is one metric line of a request body.
type record struct {
	Time       float64        `json:"time"`
	Host       string         `json:"host,omitempty"`
	Index      string         `json:"index,omitempty"`
	Source     string         `json:"source,omitempty"`
	SourceType string         `json:"sourcetype,omitempty"`
	Event      string         `json:"event"`
	Fields     map[string]any `json:"fields"`
}

// metricName joins the namespace, or the default namespace, to the name
// with a dot.
func metricName(m *event.Metric, defaultNamespace string) string {
	ns, ok := m.Namespace()
	if !ok || ns == "" {
		ns = defaultNamespace
	}
	if ns == "" {
		return m.Name()
	}
	return ns + "." + m.Name()
}

// metricValue returns the scalar of a counter or gauge.
func metricValue(m *event.Metric) (float64, error) {
	switch v := m.Value().(type) {
	case event.Counter:
		return v.Value, nil
	case event.Gauge:
		return v.Value, nil
	default:
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: metric value %s is not supported", errors.ErrInvalidData, v.Variant()),
			"HTTPMetricsSink", "metricValue", "extract value")
	}
}

// newRecord renders m, or fails when its value cannot be sent. Checking
// here keeps one unencodable metric from failing its whole partition.
func (s *Sink) newRecord(m *event.Metric, now time.Time) (record, error) {
	if err := m.Validate(); err != nil {
		return record{}, err
	}
	v, err := metricValue(m)
	if err != nil {
		return record{}, err
	}

	ts := now
	if t, ok := m.Timestamp(); ok {
		ts = t
	}
	fields := map[string]any{"metric_name": metricName(m, s.cfg.DefaultNamespace), "_value": v}
	tags := m.Tags()
	for _, k := range tags.Keys() {
		if k == s.cfg.HostKey {
			continue
		}
		if tv, ok := tags.Get(k); ok {
			fields[k] = tv
		}
	}

	r := record{
		Time:       float64(ts.UnixMilli()) / 1000,
		Index:      s.cfg.Index,
		Source:     s.cfg.Source,
		SourceType: s.cfg.SourceType,
		Event:      "metric",
		Fields:     fields,
	}
	if host, ok := tags.Get(s.cfg.HostKey); ok {
		r.Host = host
	}
	return r, nil
}

// encodeRecords renders newline-delimited JSON.
func encodeRecords(records []record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, errors.WrapInvalid(err, "HTTPMetricsSink", "encodeRecords", "encode record")
		}
	}
	return buf.Bytes(), nil
}
