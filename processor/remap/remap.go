package remap

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/metric"
)

// Config configures a remap processor backed by a MappingScript.
type Config struct {
	MappingConfig `yaml:",inline"`
	// DropOnError finalizes failed events Dropped instead of Errored.
	DropOnError bool `yaml:"drop_on_error"`
}

// Validate compiles the mapping to surface config errors early.
func (c *Config) Validate() error {
	_, err := NewMappingScript(c.MappingConfig)
	return err
}

// Deps holds the runtime dependencies of a Processor.
type Deps struct {
	ID              string
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Processor runs a Script over every event.
type Processor struct {
	id          string
	script      Script
	dropOnError bool
	fn          *engine.FunctionTransform
	logger      *slog.Logger
	outcomes    *prometheus.CounterVec
}

var _ engine.Transform = (*Processor)(nil)

// NewProcessor builds a remap processor from declarative config.
func NewProcessor(cfg Config, deps Deps) (*Processor, error) {
	script, err := NewMappingScript(cfg.MappingConfig)
	if err != nil {
		return nil, errors.Wrap(err, "RemapProcessor", "New", "compile mapping")
	}
	return NewWithScript(script, cfg.DropOnError, deps)
}

// NewWithScript builds a remap processor around any Script.
func NewWithScript(script Script, dropOnError bool, deps Deps) (*Processor, error) {
	if script == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "RemapProcessor", "New", "script check")
	}
	id := deps.ID
	if id == "" {
		id = "remap"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", id)
	}

	p := &Processor{id: id, script: script, dropOnError: dropOnError, logger: logger}
	if deps.MetricsRegistry != nil {
		p.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "eventflow",
			Subsystem:   "remap",
			Name:        "events_total",
			Help:        "Events evaluated by the script, by outcome",
			ConstLabels: prometheus.Labels{"component": id},
		}, []string{"outcome"})
		if err := deps.MetricsRegistry.RegisterCounterVec(id, "remap_events", p.outcomes); err != nil {
			return nil, errors.WrapTransient(err, "RemapProcessor", "New", "metrics registration")
		}
	}
	p.fn = engine.NewFunctionTransform(p.apply, logger)
	return p, nil
}

// Transform implements engine.Transform.
func (p *Processor) Transform(ctx context.Context, batch event.EventArray, out *engine.Output) error {
	return p.fn.Transform(ctx, batch, out)
}

func (p *Processor) apply(_ context.Context, e event.Event, emit func(event.Event)) error {
	produced, err := p.script.Evaluate(e)
	if err != nil {
		if p.dropOnError {
			// Emitting nothing finalizes the event Dropped.
			p.record("dropped")
			p.logger.Debug("Script failed, dropping event", "error", err)
			return nil
		}
		p.record("errored")
		return err
	}
	p.record("ok")
	for _, o := range produced {
		emit(o)
	}
	return nil
}

func (p *Processor) record(outcome string) {
	if p.outcomes == nil {
		return
	}
	p.outcomes.WithLabelValues(outcome).Inc()
}

// Register adds the "remap" transform type to registry.
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(component.Registration{
		Name:        "remap",
		Kind:        component.KindTransform,
		Description: "Renames, copies, sets and removes event fields",
		Factory: func(id string, opts component.Options, deps component.Dependencies) (any, error) {
			var cfg Config
			if err := opts.Decode(&cfg); err != nil {
				return nil, err
			}
			return NewProcessor(cfg, Deps{
				ID:              id,
				Logger:          deps.GetLoggerWithComponent(id),
				MetricsRegistry: deps.MetricsRegistry,
			})
		},
	})
}
