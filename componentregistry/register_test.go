package componentregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/errors"
)

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	names := func(kind component.Kind) []string {
		var out []string
		for _, reg := range registry.List(kind) {
			out = append(out, reg.Name)
		}
		return out
	}
	assert.Equal(t, []string{"udp"}, names(component.KindSource))
	assert.Equal(t, []string{"filter", "log_to_metric", "remap"}, names(component.KindTransform))
	assert.Equal(t, []string{"file", "http_metrics"}, names(component.KindSink))

	err := Register(registry)
	assert.ErrorIs(t, err, errors.ErrDuplicateID)
}

func TestRegister_NilRegistry(t *testing.T) {
	assert.True(t, errors.IsFatal(Register(nil)))
}
