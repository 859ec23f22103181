package filter

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/metric"
)

// Deps holds the runtime dependencies of a Processor.
type Deps struct {
	ID              string
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Processor forwards events matching every rule and finalizes the rest
// Dropped.
type Processor struct {
	id      string
	rules   []compiledRule
	fn      *engine.FunctionTransform
	logger  *slog.Logger
	metrics *filterMetrics
}

var _ engine.Transform = (*Processor)(nil)

// NewProcessor builds a filter. With no rules every event passes.
func NewProcessor(cfg Config, deps Deps) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "FilterProcessor", "New", "config validation")
	}
	id := deps.ID
	if id == "" {
		id = "filter"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", id)
	}
	metrics, err := newFilterMetrics(deps.MetricsRegistry, id)
	if err != nil {
		return nil, errors.WrapTransient(err, "FilterProcessor", "New", "metrics registration")
	}

	p := &Processor{id: id, logger: logger, metrics: metrics}
	for _, r := range cfg.Rules {
		compiled, _ := r.compile()
		p.rules = append(p.rules, compiled)
	}
	p.fn = engine.NewFunctionTransform(p.apply, logger)
	return p, nil
}

// Matches reports whether e satisfies every rule.
func (p *Processor) Matches(e event.Event) bool {
	t := target(e)
	for _, r := range p.rules {
		if !r.matches(t) {
			return false
		}
	}
	return true
}

// Transform implements engine.Transform.
func (p *Processor) Transform(ctx context.Context, batch event.EventArray, out *engine.Output) error {
	return p.fn.Transform(ctx, batch, out)
}

func (p *Processor) apply(_ context.Context, e event.Event, emit func(event.Event)) error {
	start := time.Now()
	matched := p.Matches(e)
	p.metrics.recordEvaluation(matched, time.Since(start))
	if matched {
		emit(e)
	}
	return nil
}

// Register adds the "filter" transform type to registry.
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(component.Registration{
		Name:        "filter",
		Kind:        component.KindTransform,
		Description: "Drops events that do not match every rule",
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
