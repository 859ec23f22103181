// Package componentregistry registers every built-in source, transform
// and sink type.
package componentregistry

import (
	"errors"

	"github.com/c360/eventflow/component"
	pkgerrors "github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/input/udp"
	"github.com/c360/eventflow/output/file"
	"github.com/c360/eventflow/output/httpmetrics"
	"github.com/c360/eventflow/processor/filter"
	"github.com/c360/eventflow/processor/logtometric"
	"github.com/c360/eventflow/processor/remap"
)

// Register adds the built-in component types to registry:
//
// Sources:
//   - udp (socket datagrams)
//
// Transforms:
//   - filter (field conditions)
//   - remap (field mapping)
//   - log_to_metric (metrics derived from log fields)
//
// Sinks:
//   - file (JSON lines)
//   - http_metrics (partitioned counter and gauge batches)
func Register(registry *component.Registry) error {
	// A nil registry is a programming error, not invalid input.
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	registrations := []struct {
		name     string
		register func(*component.Registry) error
	}{
		{"UDP source", udp.Register},
		{"filter transform", filter.Register},
		{"remap transform", remap.Register},
		{"log_to_metric transform", logtometric.Register},
		{"file sink", file.Register},
		{"http_metrics sink", httpmetrics.Register},
	}
	for _, r := range registrations {
		if err := r.register(registry); err != nil {
			return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", r.name+" registration")
		}
	}
	return nil
}
