package component

import (
	"log/slog"

	"github.com/c360/eventflow/metric"
)

// Dependencies are the shared services handed to every factory.
type Dependencies struct {
	MetricsRegistry *metric.MetricsRegistry // can be nil
	Logger          *slog.Logger            // can be nil, defaults to slog.Default()
}

// GetLogger returns the configured logger or slog.Default().
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger tagged with the component id.
func (d *Dependencies) GetLoggerWithComponent(id string) *slog.Logger {
	return d.GetLogger().With("component", id)
}
