package remap

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

func asJSON(t *testing.T, e *event.LogEvent) string {
	t.Helper()
	raw, err := e.Fields().MarshalJSON()
	require.NoError(t, err)
	return string(raw)
}

func TestMappingScript_Evaluate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     MappingConfig
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "rename",
			cfg:   MappingConfig{Mappings: []Mapping{{Source: "lvl", Target: "level"}}},
			input: `{"lvl":"WARN"}`,
			want:  `{"level":"WARN"}`,
		},
		{
			name:  "copy with transform",
			cfg:   MappingConfig{Mappings: []Mapping{{Source: "lvl", Target: "level", Op: OpCopy, Transform: TransformLowercase}}},
			input: `{"lvl":"WARN"}`,
			want:  `{"level":"warn","lvl":"WARN"}`,
		},
		{
			name:  "rename into nested target",
			cfg:   MappingConfig{Mappings: []Mapping{{Source: "host", Target: "origin.host", Transform: TransformTrim}}},
			input: `{"host":"  web-1 "}`,
			want:  `{"origin":{"host":"web-1"}}`,
		},
		{
			name:  "transform ignores non-strings",
			cfg:   MappingConfig{Mappings: []Mapping{{Source: "code", Target: "status", Transform: TransformUppercase}}},
			input: `{"code":503}`,
			want:  `{"status":503}`,
		},
		{
			name:  "optional missing source is skipped",
			cfg:   MappingConfig{Mappings: []Mapping{{Source: "absent", Target: "x"}}},
			input: `{"a":1}`,
			want:  `{"a":1}`,
		},
		{
			name:    "required missing source fails",
			cfg:     MappingConfig{Mappings: []Mapping{{Source: "absent", Target: "x", Required: true}}},
			input:   `{"a":1}`,
			wantErr: true,
		},
		{
			name:    "target through a scalar fails",
			cfg:     MappingConfig{Set: map[string]any{"a.b": 1}},
			input:   `{"a":"scalar"}`,
			wantErr: true,
		},
		{
			name:  "set then remove",
			cfg:   MappingConfig{Set: map[string]any{"env": "prod", "tags": []any{"x"}}, Remove: []string{"debug", "missing"}},
			input: `{"debug":true,"msg":"m"}`,
			want:  `{"env":"prod","msg":"m","tags":["x"]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := NewMappingScript(tt.cfg)
			require.NoError(t, err)

			e := logFromJSON(t, tt.input)
			out, err := script.Evaluate(e)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrEvaluationFailure)
				return
			}
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Same(t, e, out[0])
			assert.JSONEq(t, tt.want, asJSON(t, e))
		})
	}
}

func TestMappingScript_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  MappingConfig
	}{
		{"root target", MappingConfig{Mappings: []Mapping{{Source: "a", Target: ""}}}},
		{"wildcard source", MappingConfig{Mappings: []Mapping{{Source: "a.*", Target: "b"}}}},
		{"unknown op", MappingConfig{Mappings: []Mapping{{Source: "a", Target: "b", Op: "move"}}}},
		{"unknown transform", MappingConfig{Mappings: []Mapping{{Source: "a", Target: "b", Transform: "reverse"}}}},
		{"bad set path", MappingConfig{Set: map[string]any{"a[": 1}}},
		{"bad remove path", MappingConfig{Remove: []string{"."}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMappingScript(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestMappingScript_MetricsPassThrough(t *testing.T) {
	script, err := NewMappingScript(MappingConfig{Set: map[string]any{"x": 1}})
	require.NoError(t, err)
	m := event.NewMetric(event.MetricSeries{Name: "hits"}, event.Incremental, event.Counter{Value: 1})
	out, err := script.Evaluate(m)
	require.NoError(t, err)
	assert.Equal(t, []event.Event{m}, out)
}

func TestProcessor_FailureOutcomes(t *testing.T) {
	cfg := MappingConfig{Mappings: []Mapping{{Source: "id", Target: "request_id", Required: true}}}

	for _, tc := range []struct {
		name        string
		dropOnError bool
		want        event.EventStatus
	}{
		{"errored by default", false, event.Errored},
		{"dropped with drop_on_error", true, event.Dropped},
	} {
		t.Run(tc.name, func(t *testing.T) {
			registry := metric.NewMetricsRegistry()
			p, err := NewProcessor(Config{MappingConfig: cfg, DropOnError: tc.dropOnError},
				Deps{ID: "normalize", MetricsRegistry: registry})
			require.NoError(t, err)

			okF := event.NewEventFinalizer(nil)
			badF := event.NewEventFinalizer(nil)
			batch := event.LogArray{
				logFromJSON(t, `{"id":"r-1"}`, event.WithFinalizer(okF)),
				logFromJSON(t, `{"other":1}`, event.WithFinalizer(badF)),
			}

			ch := make(chan event.EventArray, 1)
			require.NoError(t, p.Transform(context.Background(), batch, engine.NewOutput("normalize", ch)))

			out := (<-ch).(event.LogArray)
			require.Len(t, out, 1)
			assert.JSONEq(t, `{"request_id":"r-1"}`, asJSON(t, out[0]))

			status, done := badF.Status()
			require.True(t, done)
			assert.Equal(t, tc.want, status)

			out.Finalize(event.Delivered)
			status, done = okF.Status()
			require.True(t, done)
			assert.Equal(t, event.Delivered, status)

			assert.Equal(t, 1.0, testutil.ToFloat64(p.outcomes.WithLabelValues("ok")))
		})
	}
}

func TestProcessor_ScriptFanOut(t *testing.T) {
	// One event becomes two derived events sharing its finalizer.
	split := ScriptFunc(func(e event.Event) ([]event.Event, error) {
		log := e.(*event.LogEvent)
		var out []event.Event
		for _, part := range []string{"a", "b"} {
			md := log.Metadata().Derive()
			out = append(out, event.NewLogMessage(part, event.WithMetadata(md)))
		}
		return out, nil
	})
	p, err := NewWithScript(split, false, Deps{})
	require.NoError(t, err)

	f := event.NewEventFinalizer(nil)
	ch := make(chan event.EventArray, 1)
	require.NoError(t, p.Transform(context.Background(),
		event.LogArray{event.NewLogMessage("ab", event.WithFinalizer(f))}, engine.NewOutput("split", ch)))

	out := <-ch
	require.Equal(t, 2, out.Len())
	_, done := f.Status()
	assert.False(t, done, "source waits for the derived events")

	out.Finalize(event.Delivered)
	status, done := f.Status()
	require.True(t, done)
	assert.Equal(t, event.Delivered, status)
}

func TestNewWithScript_RequiresScript(t *testing.T) {
	_, err := NewWithScript(nil, false, Deps{})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	tr, err := registry.CreateTransform("remap", "normalize", component.Options{
		"mappings":      []any{map[string]any{"source": "lvl", "target": "level"}},
		"set":           map[string]any{"env": "prod"},
		"drop_on_error": true,
	}, component.Dependencies{})
	require.NoError(t, err)
	p, ok := tr.Transform.(*Processor)
	require.True(t, ok)
	assert.True(t, p.dropOnError)

	_, err = registry.CreateTransform("remap", "bad", component.Options{
		"mappings": []any{map[string]any{"source": "lvl", "target": "level", "op": "move"}},
	}, component.Dependencies{})
	assert.Error(t, err)
}
