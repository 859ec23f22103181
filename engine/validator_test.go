package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventflow/errors"
)

func TestPipeline_Validate(t *testing.T) {
	tests := []struct {
		name      string
		build     func(p *Pipeline)
		status    string
		issue     string
		wantOrder []string
	}{
		{
			name: "linear",
			build: func(p *Pipeline) {
				_ = p.AddSource("in", &sliceSource{})
				_ = p.AddTransform("fn", NewFunctionTransform(nil, nil), "in")
				_ = p.AddSink("out", &collectSink{}, "fn")
			},
			status:    "valid",
			wantOrder: []string{"in", "fn", "out"},
		},
		{
			name: "unknown input",
			build: func(p *Pipeline) {
				_ = p.AddSource("in", &sliceSource{})
				_ = p.AddSink("out", &collectSink{}, "nope")
			},
			status: "errors",
			issue:  "unknown_input",
		},
		{
			name: "no sources",
			build: func(p *Pipeline) {
				_ = p.AddSink("out", &collectSink{}, "out")
			},
			status: "errors",
			issue:  "no_sources",
		},
		{
			name: "sink without inputs",
			build: func(p *Pipeline) {
				_ = p.AddSource("in", &sliceSource{})
				_ = p.AddSink("a", &collectSink{}, "in")
				_ = p.AddSink("out", &collectSink{})
			},
			status: "errors",
			issue:  "no_inputs",
		},
		{
			name: "sink as input",
			build: func(p *Pipeline) {
				_ = p.AddSource("in", &sliceSource{})
				_ = p.AddSink("a", &collectSink{}, "in")
				_ = p.AddSink("b", &collectSink{}, "a")
			},
			status: "errors",
			issue:  "sink_as_input",
		},
		{
			name: "cycle",
			build: func(p *Pipeline) {
				_ = p.AddSource("in", &sliceSource{})
				_ = p.AddTransform("x", NewFunctionTransform(nil, nil), "in", "y")
				_ = p.AddTransform("y", NewFunctionTransform(nil, nil), "x")
				_ = p.AddSink("out", &collectSink{}, "y")
			},
			status: "errors",
			issue:  "cycle",
		},
		{
			name: "dangling output",
			build: func(p *Pipeline) {
				_ = p.AddSource("in", &sliceSource{})
				_ = p.AddSource("unused", &sliceSource{})
				_ = p.AddSink("out", &collectSink{}, "in")
			},
			status: "warnings",
			issue:  "dangling_output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(DefaultConfig(), Deps{})
			require.NoError(t, err)
			tt.build(p)

			result := p.Validate()
			assert.Equal(t, tt.status, result.Status)
			if tt.issue != "" {
				var types []string
				for _, i := range append(result.Errors, result.Warnings...) {
					types = append(types, i.Type)
				}
				assert.Contains(t, types, tt.issue)
			}
			if tt.wantOrder != nil {
				assert.Equal(t, tt.wantOrder, result.Order)
			}
		})
	}
}

func TestPipeline_AddRejectsBadIDs(t *testing.T) {
	p, err := New(DefaultConfig(), Deps{})
	require.NoError(t, err)

	require.NoError(t, p.AddSource("in", &sliceSource{}))
	err = p.AddSource("in", &sliceSource{})
	assert.ErrorIs(t, err, errors.ErrDuplicateID)

	err = p.AddSink("", &collectSink{}, "in")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	err = p.AddSink("out", &collectSink{}, "in", "in")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
