package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/eventflow/buffer"
	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/health"
	"github.com/c360/eventflow/metric"
)

const defaultMemoryBatches = 100

// BuildDeps holds what Build needs besides the config.
type BuildDeps struct {
	Registry        *component.Registry
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
	Health          *health.Monitor
	// JetStream backs jetstream buffers. Only needed when UsesJetStream.
	JetStream jetstream.JetStream
}

// Build creates every component through the registry and assembles the
// pipeline. Components are created in id order so failures are
// reproducible.
func Build(ctx context.Context, cfg *Config, deps BuildDeps) (*engine.Pipeline, error) {
	if deps.Registry == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Config", "Build", "component registry required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UsesJetStream() && deps.JetStream == nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: jetstream buffer without a NATS connection", errors.ErrMissingConfig),
			"Config", "Build", "check jetstream")
	}

	p, err := engine.New(cfg.Engine, engine.Deps{
		Logger:          logger.With("component", "pipeline"),
		MetricsRegistry: deps.MetricsRegistry,
		Health:          deps.Health,
	})
	if err != nil {
		return nil, err
	}
	cdeps := component.Dependencies{MetricsRegistry: deps.MetricsRegistry, Logger: logger}

	for _, id := range sortedKeys(cfg.Sources) {
		sc := cfg.Sources[id]
		src, err := deps.Registry.CreateSource(sc.Type, id, sc.Options, cdeps)
		if err != nil {
			return nil, err
		}
		if err := p.AddSource(id, src,
			engine.WithAcknowledgements(sc.Acknowledgements),
			engine.WithSourceType(sc.Type)); err != nil {
			return nil, err
		}
	}

	for _, id := range sortedKeys(cfg.Transforms) {
		tc := cfg.Transforms[id]
		tr, err := deps.Registry.CreateTransform(tc.Type, id, tc.Options, cdeps)
		if err != nil {
			return nil, err
		}
		if tr.Task != nil {
			err = p.AddTask(id, tr.Task, tc.Inputs...)
		} else {
			err = p.AddTransform(id, tr.Transform, tc.Inputs...)
		}
		if err != nil {
			return nil, err
		}
	}

	for _, id := range sortedKeys(cfg.Sinks) {
		sc := cfg.Sinks[id]
		sink, err := deps.Registry.CreateSink(sc.Type, id, sc.Options, cdeps)
		if err != nil {
			return nil, err
		}
		if sc.Buffer != nil {
			buf, err := newBuffer(ctx, id, sc.Buffer, deps, logger)
			if err != nil {
				return nil, err
			}
			sink = buffer.NewSink(sink, buf, logger.With("component", id, "buffer", sc.Buffer.Type))
		}
		if err := p.AddSink(id, sink, sc.Inputs...); err != nil {
			return nil, err
		}
	}

	if result := p.Validate(); !result.OK() {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, result.Error()),
			"Config", "Build", "validate topology")
	}
	return p, nil
}

func newBuffer(ctx context.Context, sinkID string, bc *BufferConfig, deps BuildDeps, logger *slog.Logger) (buffer.Buffer, error) {
	switch bc.Type {
	case BufferMemory:
		policy, err := buffer.ParseOverflowPolicy(bc.WhenFull)
		if err != nil {
			return nil, err
		}
		capacity := bc.MaxBatches
		if capacity == 0 {
			capacity = defaultMemoryBatches
		}
		opts := []buffer.Option{
			buffer.WithOverflowPolicy(policy),
			buffer.WithLogger(logger.With("component", sinkID, "buffer", BufferMemory)),
		}
		if deps.MetricsRegistry != nil {
			opts = append(opts, buffer.WithMetrics(deps.MetricsRegistry, sinkID))
		}
		return buffer.NewMemory(capacity, opts...)
	case BufferJetStream:
		jc := buffer.DefaultJetStreamConfig(bc.Stream)
		if bc.Subject != "" {
			jc.Subject = bc.Subject
		}
		if bc.Consumer != "" {
			jc.Consumer = bc.Consumer
		}
		jc.MaxAge = bc.MaxAge
		return buffer.NewJetStream(ctx, deps.JetStream, jc, logger.With("component", sinkID, "buffer", BufferJetStream))
	default:
		return nil, invalid(fmt.Sprintf("unknown buffer type %q", bc.Type))
	}
}
