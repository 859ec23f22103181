package logtometric

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/metric"
	"github.com/c360/eventflow/value"
)

func logFromJSON(t *testing.T, raw string, opts ...event.Option) *event.LogEvent {
	t.Helper()
	payload, err := value.ParseJSON([]byte(raw))
	require.NoError(t, err)
	e, err := event.NewLog(payload, opts...)
	require.NoError(t, err)
	return e
}

// run pushes batch through p and collects every emitted batch.
func run(t *testing.T, p *Processor, batch event.EventArray) []event.EventArray {
	t.Helper()
	ch := make(chan event.EventArray, 8)
	require.NoError(t, p.Transform(context.Background(), batch, engine.NewOutput("l2m", ch)))
	close(ch)
	var out []event.EventArray
	for b := range ch {
		out = append(out, b)
	}
	return out
}

func metricsOf(t *testing.T, batches []event.EventArray) event.MetricArray {
	t.Helper()
	var out event.MetricArray
	for _, b := range batches {
		if m, ok := b.(event.MetricArray); ok {
			out = append(out, m...)
		}
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no metrics", Config{}},
		{"unknown type", Config{Metrics: []MetricConfig{{Type: "summary", Field: "a"}}}},
		{"root field", Config{Metrics: []MetricConfig{{Type: TypeCounter, Field: ""}}}},
		{"wildcard field", Config{Metrics: []MetricConfig{{Type: TypeGauge, Field: "a.*"}}}},
		{"increment on gauge", Config{Metrics: []MetricConfig{{Type: TypeGauge, Field: "a", IncrementByValue: true}}}},
		{"bad tag path", Config{Metrics: []MetricConfig{{Type: TypeSet, Field: "a", Tags: map[string]string{"h": "b["}}}}},
		{"empty tag key", Config{Metrics: []MetricConfig{{Type: TypeSet, Field: "a", Tags: map[string]string{"": "b"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProcessor(tt.cfg, Deps{})
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestProcessor_MetricTypes(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p, err := NewProcessor(Config{Metrics: []MetricConfig{
		{Type: TypeCounter, Field: "status", Name: "requests", Namespace: "web",
			Tags: map[string]string{"code": "status", "host": "host"}},
		{Type: TypeCounter, Field: "bytes", Name: "bytes_sent", IncrementByValue: true},
		{Type: TypeGauge, Field: "queue_depth"},
		{Type: TypeSet, Field: "user"},
		{Type: TypeDistribution, Field: "latency_ms"},
	}}, Deps{})
	require.NoError(t, err)

	e := logFromJSON(t, `{"status":200,"host":"web-1","bytes":"512","queue_depth":7.5,
		"user":"ana","latency_ms":12}`)
	_, _, err = e.Insert(value.MustParsePath("timestamp"), value.Timestamp(ts))
	require.NoError(t, err)

	metrics := metricsOf(t, run(t, p, event.LogArray{e}))
	require.Len(t, metrics, 5)

	requests := metrics[0]
	assert.Equal(t, "requests", requests.Name())
	ns, ok := requests.Namespace()
	require.True(t, ok)
	assert.Equal(t, "web", ns)
	assert.Equal(t, event.Incremental, requests.MetricKind())
	assert.Equal(t, event.Counter{Value: 1}, requests.Value())
	code, _ := requests.Tags().Get("code")
	host, _ := requests.Tags().Get("host")
	assert.Equal(t, "200", code)
	assert.Equal(t, "web-1", host)
	got, ok := requests.Timestamp()
	require.True(t, ok)
	assert.True(t, ts.Equal(got))

	assert.Equal(t, event.Counter{Value: 512}, metrics[1].Value())

	assert.Equal(t, "queue_depth", metrics[2].Name())
	assert.Equal(t, event.Absolute, metrics[2].MetricKind())
	assert.Equal(t, event.Gauge{Value: 7.5}, metrics[2].Value())

	assert.Equal(t, event.NewSet("ana"), metrics[3].Value())

	assert.Equal(t, event.Distribution{
		Samples:   []event.Sample{{Value: 12, Rate: 1}},
		Statistic: event.StatisticHistogram,
	}, metrics[4].Value())

	for _, m := range metrics {
		assert.NoError(t, m.Validate())
	}
}

func TestProcessor_SkipsMissingAndNonNumeric(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	p, err := NewProcessor(Config{Metrics: []MetricConfig{
		{Type: TypeGauge, Field: "temp"},
	}}, Deps{ID: "l2m", MetricsRegistry: registry})
	require.NoError(t, err)

	missingF := event.NewEventFinalizer(nil)
	badF := event.NewEventFinalizer(nil)
	out := run(t, p, event.LogArray{
		logFromJSON(t, `{"other":1}`, event.WithFinalizer(missingF)),
		logFromJSON(t, `{"temp":"warm"}`, event.WithFinalizer(badF)),
	})
	assert.Empty(t, out)

	for _, f := range []*event.EventFinalizer{missingF, badF} {
		status, done := f.Status()
		require.True(t, done)
		assert.Equal(t, event.Dropped, status)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(p.skipped.WithLabelValues("not_a_number")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.produced))
}

func TestProcessor_DerivedMetricsShareFinalizer(t *testing.T) {
	p, err := NewProcessor(Config{Metrics: []MetricConfig{
		{Type: TypeCounter, Field: "a"},
		{Type: TypeCounter, Field: "b"},
	}}, Deps{})
	require.NoError(t, err)

	f := event.NewEventFinalizer(nil)
	metrics := metricsOf(t, run(t, p, event.LogArray{logFromJSON(t, `{"a":1,"b":2}`, event.WithFinalizer(f))}))
	require.Len(t, metrics, 2)

	metrics[:1].Finalize(event.Delivered)
	_, done := f.Status()
	assert.False(t, done, "one derived metric is still in flight")

	metrics[1:].Finalize(event.Rejected)
	status, done := f.Status()
	require.True(t, done)
	assert.Equal(t, event.Rejected, status)
}

func TestProcessor_KeepLogsAndPassThrough(t *testing.T) {
	p, err := NewProcessor(Config{KeepLogs: true, Metrics: []MetricConfig{
		{Type: TypeCounter, Field: "level"},
	}}, Deps{})
	require.NoError(t, err)

	out := run(t, p, event.LogArray{logFromJSON(t, `{"level":"info"}`)})
	require.Len(t, out, 2)
	logs, ok := out[0].(event.LogArray)
	require.True(t, ok, "log goes first")
	assert.Len(t, logs, 1)
	metrics, ok := out[1].(event.MetricArray)
	require.True(t, ok)
	require.Len(t, metrics, 1)
	assert.Equal(t, "level", metrics[0].Name())

	gauge := event.NewMetric(event.MetricSeries{Name: "cpu"}, event.Absolute, event.Gauge{Value: 0.5})
	out = run(t, p, event.MetricArray{gauge})
	require.Len(t, out, 1)
	assert.Same(t, gauge, out[0].(event.MetricArray)[0])
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	tr, err := registry.CreateTransform("log_to_metric", "l2m", component.Options{
		"metrics": []any{map[string]any{"type": "counter", "field": "status", "tags": map[string]any{"code": "status"}}},
	}, component.Dependencies{})
	require.NoError(t, err)
	assert.IsType(t, &Processor{}, tr.Transform)

	_, err = registry.CreateTransform("log_to_metric", "l2m", component.Options{}, component.Dependencies{})
	assert.Error(t, err)
}

func TestProcessor_TimestampShapes(t *testing.T) {
	p, err := NewProcessor(Config{Metrics: []MetricConfig{{Type: TypeCounter, Field: "status"}}}, Deps{})
	require.NoError(t, err)
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, raw := range []string{
		`{"status":200,"timestamp":"2026-03-01T12:00:00Z"}`,
		`{"status":200,"timestamp":1772366400}`,
		`{"status":200,"timestamp":1772366400000}`,
	} {
		metrics := metricsOf(t, run(t, p, event.LogArray{logFromJSON(t, raw)}))
		require.Len(t, metrics, 1)
		got, ok := metrics[0].Timestamp()
		require.True(t, ok, raw)
		assert.True(t, want.Equal(got), "%s: got %s", raw, got)
	}

	metrics := metricsOf(t, run(t, p, event.LogArray{logFromJSON(t, `{"status":200,"timestamp":"soon"}`)}))
	require.Len(t, metrics, 1)
	_, ok := metrics[0].Timestamp()
	assert.False(t, ok, "unparsable timestamps are left unset")
}

func TestProcessor_AggregatesPerBatch(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	p, err := NewProcessor(Config{
		Aggregate: true,
		Metrics: []MetricConfig{
			{Type: TypeCounter, Field: "status", Tags: map[string]string{"code": "status"}},
			{Type: TypeGauge, Field: "queue_depth"},
			{Type: TypeSet, Field: "user"},
		},
	}, Deps{ID: "l2m", MetricsRegistry: registry})
	require.NoError(t, err)

	var finalizers []*event.EventFinalizer
	var batch event.LogArray
	for _, raw := range []string{
		`{"status":200,"user":"a","queue_depth":1}`,
		`{"status":500,"user":"b","queue_depth":3}`,
		`{"status":200,"user":"a","queue_depth":2}`,
	} {
		f := event.NewEventFinalizer(nil)
		finalizers = append(finalizers, f)
		batch = append(batch, logFromJSON(t, raw, event.WithFinalizer(f)))
	}

	metrics := metricsOf(t, run(t, p, batch))
	require.Len(t, metrics, 4)

	ok200, _ := metrics[0].Tags().Get("code")
	assert.Equal(t, "200", ok200)
	assert.Equal(t, event.Counter{Value: 2}, metrics[0].Value())
	assert.Equal(t, event.Gauge{Value: 2}, metrics[1].Value())
	assert.Equal(t, event.NewSet("a", "b"), metrics[2].Value())
	failed, _ := metrics[3].Tags().Get("code")
	assert.Equal(t, "500", failed)
	assert.Equal(t, event.Counter{Value: 1}, metrics[3].Value())

	for _, f := range finalizers {
		_, done := f.Status()
		assert.False(t, done)
	}

	// The 500 counter carries only the second log, which also feeds the
	// merged gauge and set.
	event.Finalize(metrics[3], event.Errored)
	event.MetricArray(metrics[:3]).Finalize(event.Delivered)

	for i, want := range []event.EventStatus{event.Delivered, event.Errored, event.Delivered} {
		status, done := finalizers[i].Status()
		require.True(t, done, "log %d", i)
		assert.Equal(t, want, status, "log %d", i)
	}
	assert.Equal(t, 9.0, testutil.ToFloat64(p.produced))
}

func TestProcessor_AggregateKeepsUnmergeableMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	p, err := NewProcessor(Config{
		Aggregate: true,
		Metrics:   []MetricConfig{{Type: TypeCounter, Field: "bytes", IncrementByValue: true}},
	}, Deps{ID: "l2m", MetricsRegistry: registry})
	require.NoError(t, err)

	batch := event.LogArray{
		logFromJSON(t, `{"bytes":1.7e308}`),
	}
	metrics := metricsOf(t, run(t, p, batch))
	require.Len(t, metrics, 2)
	assert.Equal(t, event.Counter{Value: 1.7e308}, metrics[0].Value())
	assert.Equal(t, event.Counter{Value: 1.7e308}, metrics[1].Value())
	assert.Equal(t, 1.0, testutil.ToFloat64(p.skipped.WithLabelValues("not_aggregated")))
}
