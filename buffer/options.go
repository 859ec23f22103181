package buffer

import (
	"log/slog"

	"github.com/c360/eventflow/metric"
)

// Option configures a memory buffer.
type Option func(*options)

type options struct {
	policy       OverflowPolicy
	dropCallback DropCallback
	registrar    metric.MetricsRegistrar
	component    string
	logger       *slog.Logger
}

// WithOverflowPolicy sets the overflow behavior. Defaults to Block.
func WithOverflowPolicy(policy OverflowPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithDropCallback observes shed batches.
func WithDropCallback(cb DropCallback) Option {
	return func(o *options) {
		o.dropCallback = cb
	}
}

// WithMetrics exports the buffer statistics under the given component id.
// A nil registrar or empty component is ignored.
func WithMetrics(registrar metric.MetricsRegistrar, component string) Option {
	return func(o *options) {
		if registrar != nil && component != "" {
			o.registrar = registrar
			o.component = component
		}
	}
}

// WithLogger sets the logger used for overflow warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(opts []Option) *options {
	o := &options{policy: Block}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "buffer")
	}
	return o
}
