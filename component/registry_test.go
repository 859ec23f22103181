package component

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
)

type nopSource struct{ rate int }

func (nopSource) Run(ctx context.Context, _ engine.SourceContext) error {
	<-ctx.Done()
	return nil
}

type nopTask struct{}

func (nopTask) Run(_ context.Context, in <-chan event.EventArray, _ *engine.Output) error {
	for range in {
	}
	return nil
}

type nopSink struct{}

func (nopSink) Run(_ context.Context, in <-chan event.EventArray) error {
	for batch := range in {
		batch.Finalize(event.Delivered)
	}
	return nil
}

type sourceConfig struct {
	Rate     int           `yaml:"rate"`
	Interval time.Duration `yaml:"interval"`
}

func (c *sourceConfig) Validate() error {
	if c.Rate < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "sourceConfig", "Validate", "rate check")
	}
	return nil
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory(Registration{
		Name: "nop",
		Kind: KindSource,
		Factory: func(_ string, opts Options, _ Dependencies) (any, error) {
			cfg := sourceConfig{Rate: 1}
			if err := opts.Decode(&cfg); err != nil {
				return nil, err
			}
			return nopSource{rate: cfg.Rate}, nil
		},
	}))
	require.NoError(t, r.RegisterFactory(Registration{
		Name:    "nop",
		Kind:    KindTransform,
		Factory: func(string, Options, Dependencies) (any, error) { return nopTask{}, nil },
	}))
	require.NoError(t, r.RegisterFactory(Registration{
		Name:    "nop",
		Kind:    KindSink,
		Factory: func(string, Options, Dependencies) (any, error) { return nopSink{}, nil },
	}))
	require.NoError(t, r.RegisterFactory(Registration{
		Name:    "liar",
		Kind:    KindSink,
		Factory: func(string, Options, Dependencies) (any, error) { return nopSource{}, nil },
	}))
	return r
}

func TestRegistry_RegisterFactory(t *testing.T) {
	factory := func(string, Options, Dependencies) (any, error) { return nil, nil }

	tests := []struct {
		name    string
		reg     Registration
		wantErr error
	}{
		{"valid", Registration{Name: "udp", Kind: KindSource, Factory: factory}, nil},
		{"empty name", Registration{Kind: KindSource, Factory: factory}, errors.ErrInvalidConfig},
		{"bad name", Registration{Name: "u dp", Kind: KindSource, Factory: factory}, errors.ErrInvalidConfig},
		{"nil factory", Registration{Name: "udp", Kind: KindSource}, errors.ErrInvalidConfig},
		{"bad kind", Registration{Name: "udp", Kind: "storage", Factory: factory}, errors.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().RegisterFactory(tt.reg)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegistry_DuplicatePerKind(t *testing.T) {
	r := testRegistry(t)
	err := r.RegisterFactory(Registration{
		Name:    "nop",
		Kind:    KindSink,
		Factory: func(string, Options, Dependencies) (any, error) { return nopSink{}, nil },
	})
	assert.ErrorIs(t, err, errors.ErrDuplicateID)
	assert.True(t, errors.IsInvalid(err))

	names := []string{}
	for _, reg := range r.List(KindSink) {
		names = append(names, reg.Name)
	}
	assert.Equal(t, []string{"liar", "nop"}, names)
}

func TestRegistry_Create(t *testing.T) {
	r := testRegistry(t)
	deps := Dependencies{}

	src, err := r.CreateSource("nop", "in", Options{"rate": 5, "interval": "2s"}, deps)
	require.NoError(t, err)
	assert.Equal(t, nopSource{rate: 5}, src)

	tr, err := r.CreateTransform("nop", "mid", nil, deps)
	require.NoError(t, err)
	assert.NotNil(t, tr.Task)
	assert.Nil(t, tr.Transform)

	_, err = r.CreateSink("nop", "out", nil, deps)
	require.NoError(t, err)

	_, err = r.CreateSource("missing", "in", nil, deps)
	assert.ErrorIs(t, err, errors.ErrUnknownType)

	_, err = r.CreateSource("nop", "", nil, deps)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = r.CreateSink("liar", "out", nil, deps)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestOptions_Decode(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    sourceConfig
		wantErr bool
	}{
		{name: "defaults kept", opts: nil, want: sourceConfig{Rate: 1}},
		{name: "duration string", opts: Options{"interval": "1500ms"}, want: sourceConfig{Rate: 1, Interval: 1500 * time.Millisecond}},
		{name: "unknown key", opts: Options{"rat": 3}, wantErr: true},
		{name: "validation", opts: Options{"rate": -1}, wantErr: true},
		{name: "wrong type", opts: Options{"rate": "fast"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sourceConfig{Rate: 1}
			err := tt.opts.Decode(&cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestOptions_DecodeRejectsDeepNesting(t *testing.T) {
	var nested any = "leaf"
	for i := 0; i < MaxOptionsDepth+2; i++ {
		nested = map[string]any{"n": nested}
	}
	var target map[string]any
	err := Options{"root": nested}.Decode(&target)
	assert.True(t, errors.IsInvalid(err))
}

func TestOptions_DecodeRequiresPointer(t *testing.T) {
	err := Options{}.Decode(sourceConfig{})
	assert.True(t, errors.IsInvalid(err))
}
