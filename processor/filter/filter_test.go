package filter

import (
	"context"
	"testing"

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

func newFilter(t *testing.T, rules ...Rule) *Processor {
	t.Helper()
	p, err := NewProcessor(Config{Rules: rules}, Deps{})
	require.NoError(t, err)
	return p
}

func TestRule_Operators(t *testing.T) {
	const doc = `{"level":"error","status":503,"latency":0.25,"msg":"upstream timeout",
		"tags":["db","prod"],"nested":{"code":"E42"}}`

	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{"eq string", Rule{"level", OpEq, "error"}, true},
		{"eq int vs float operand", Rule{"status", OpEq, 503.0}, true},
		{"eq mismatch", Rule{"level", OpEq, "warn"}, false},
		{"ne", Rule{"level", OpNe, "warn"}, true},
		{"ne missing field", Rule{"absent", OpNe, "warn"}, false},
		{"gt", Rule{"status", OpGt, 499}, true},
		{"gte equal", Rule{"status", OpGte, 503}, true},
		{"lt float", Rule{"latency", OpLt, 1}, true},
		{"lte fails", Rule{"latency", OpLte, 0.1}, false},
		{"gt string ordering", Rule{"level", OpGt, "debug"}, true},
		{"gt mixed kinds", Rule{"level", OpGt, 1}, false},
		{"contains substring", Rule{"msg", OpContains, "timeout"}, true},
		{"contains array member", Rule{"tags", OpContains, "prod"}, true},
		{"contains array miss", Rule{"tags", OpContains, "dev"}, false},
		{"contains on number", Rule{"status", OpContains, "5"}, false},
		{"nested path", Rule{"nested.code", OpEq, "E42"}, true},
		{"exists", Rule{Field: "nested.code", Operator: OpExists}, true},
		{"exists missing", Rule{Field: "nested.other", Operator: OpExists}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFilter(t, tt.rule)
			assert.Equal(t, tt.want, p.Matches(logFromJSON(t, doc)))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"empty field", Rule{Operator: OpEq, Value: 1}},
		{"bad path", Rule{Field: "a[", Operator: OpEq, Value: 1}},
		{"wildcard", Rule{Field: "a.*", Operator: OpEq, Value: 1}},
		{"unknown operator", Rule{Field: "a", Operator: "regex", Value: "x"}},
		{"missing value", Rule{Field: "a", Operator: OpEq}},
		{"unsupported value", Rule{Field: "a", Operator: OpEq, Value: struct{}{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProcessor(Config{Rules: []Rule{tt.rule}}, Deps{})
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestProcessor_RulesAreANDed(t *testing.T) {
	p := newFilter(t,
		Rule{"level", OpEq, "error"},
		Rule{"status", OpGte, 500},
	)
	assert.True(t, p.Matches(logFromJSON(t, `{"level":"error","status":502}`)))
	assert.False(t, p.Matches(logFromJSON(t, `{"level":"error","status":404}`)))
	assert.False(t, p.Matches(logFromJSON(t, `{"level":"info","status":502}`)))
}

func TestProcessor_NoRulesPassesEverything(t *testing.T) {
	assert.True(t, newFilter(t).Matches(event.NewLogMessage("anything")))
}

func TestProcessor_MetricView(t *testing.T) {
	ns := "app"
	tags := event.MetricTags{}
	tags.Set("host", "web-1")
	m := event.NewMetric(event.MetricSeries{Name: "requests", Namespace: &ns, Tags: tags},
		event.Incremental, event.Counter{Value: 1})

	assert.True(t, newFilter(t, Rule{"name", OpEq, "requests"}).Matches(m))
	assert.True(t, newFilter(t, Rule{"namespace", OpEq, "app"}).Matches(m))
	assert.True(t, newFilter(t, Rule{"tags.host", OpEq, "web-1"}).Matches(m))
	assert.True(t, newFilter(t, Rule{"type", OpEq, "counter"}).Matches(m))
	assert.False(t, newFilter(t, Rule{"tags.region", OpExists, nil}).Matches(m))
}

func TestProcessor_TransformFinalizesDropped(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	p, err := NewProcessor(Config{Rules: []Rule{{"level", OpEq, "error"}}},
		Deps{ID: "errors_only", MetricsRegistry: registry})
	require.NoError(t, err)

	keepF := event.NewEventFinalizer(nil)
	dropF := event.NewEventFinalizer(nil)
	batch := event.LogArray{
		logFromJSON(t, `{"level":"error","msg":"a"}`, event.WithFinalizer(keepF)),
		logFromJSON(t, `{"level":"info","msg":"b"}`, event.WithFinalizer(dropF)),
	}

	ch := make(chan event.EventArray, 1)
	require.NoError(t, p.Transform(context.Background(), batch, engine.NewOutput("errors_only", ch)))

	out := <-ch
	require.Equal(t, 1, out.Len())
	msg, _ := out.(event.LogArray)[0].GetString(value.MustParsePath("msg"))
	assert.Equal(t, "a", msg)

	status, done := dropF.Status()
	assert.True(t, done)
	assert.Equal(t, event.Dropped, status)

	_, done = keepF.Status()
	assert.False(t, done, "kept event resolves downstream")
	out.Finalize(event.Delivered)
	status, done = keepF.Status()
	assert.True(t, done)
	assert.Equal(t, event.Delivered, status)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.matched))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.dropped))
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	tr, err := registry.CreateTransform("filter", "errors_only", component.Options{
		"rules": []any{map[string]any{"field": "level", "operator": "eq", "value": "error"}},
	}, component.Dependencies{})
	require.NoError(t, err)
	assert.IsType(t, &Processor{}, tr.Transform)

	_, err = registry.CreateTransform("filter", "bad", component.Options{
		"rules": []any{map[string]any{"field": "level", "operator": "like", "value": "e"}},
	}, component.Dependencies{})
	assert.Error(t, err)
}
