package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/health"
	"github.com/c360/eventflow/metric"
)

type stageType int

const (
	stageSource stageType = iota
	stageTransform
	stageSink
)

func (s stageType) String() string {
	switch s {
	case stageSource:
		return "source"
	case stageTransform:
		return "transform"
	default:
		return "sink"
	}
}

type node struct {
	id     string
	stage  stageType
	inputs []string

	source           Source
	sourceType       string
	acknowledgements bool
	task             TaskTransform
	sink             Sink

	in  chan event.EventArray
	out *Output
}

// Config tunes the runtime.
type Config struct {
	// ChannelCapacity bounds each component's input, in batches.
	ChannelCapacity int `json:"channel_capacity" yaml:"channel_capacity"`
	// DrainTimeout is how long transforms and sinks may keep working
	// after shutdown starts. Whatever is still queued afterwards is
	// finalized Dropped.
	DrainTimeout time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
}

// DefaultConfig returns the runtime defaults.
func DefaultConfig() Config {
	return Config{ChannelCapacity: 16, DrainTimeout: 30 * time.Second}
}

// Deps holds runtime dependencies for the pipeline.
type Deps struct {
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry // optional
	// Health receives per-component running state. Optional.
	Health *health.Monitor
}

// Pipeline wires sources, transforms and sinks with bounded channels and
// runs them until the input is exhausted or the context is cancelled.
type Pipeline struct {
	cfg      Config
	logger   *slog.Logger
	recorder *recorder

	mu      sync.Mutex
	nodes   map[string]*node
	running bool
}

// SourceOption configures a source node.
type SourceOption func(*node)

// WithAcknowledgements asks the source to wait for batch outcomes.
func WithAcknowledgements(enabled bool) SourceOption {
	return func(n *node) { n.acknowledgements = enabled }
}

// WithSourceType sets the source type stamped on events the source
// leaves unstamped.
func WithSourceType(sourceType string) SourceOption {
	return func(n *node) { n.sourceType = sourceType }
}

// New creates an empty pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = DefaultConfig().ChannelCapacity
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultConfig().DrainTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "pipeline")
	}

	pm, err := newEngineMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.WrapTransient(err, "Pipeline", "New", "metrics registration")
	}
	return &Pipeline{
		cfg:      cfg,
		logger:   logger,
		recorder: &recorder{core: deps.MetricsRegistry.CoreMetrics(), pipeline: pm, health: deps.Health},
		nodes:    make(map[string]*node),
	}, nil
}

// AddSource registers a source.
func (p *Pipeline) AddSource(id string, src Source, opts ...SourceOption) error {
	n := &node{id: id, stage: stageSource, source: src, sourceType: id}
	for _, opt := range opts {
		opt(n)
	}
	return p.add(n, nil)
}

// AddTransform registers a per-batch transform fed by inputs.
func (p *Pipeline) AddTransform(id string, t Transform, inputs ...string) error {
	n := &node{id: id, stage: stageTransform, task: &transformTask{
		id: id, transform: t, recorder: p.recorder, logger: p.logger.With("component", id),
	}}
	return p.add(n, inputs)
}

// AddTask registers a task transform fed by inputs.
func (p *Pipeline) AddTask(id string, t TaskTransform, inputs ...string) error {
	return p.add(&node{id: id, stage: stageTransform, task: t}, inputs)
}

// AddSink registers a sink fed by inputs.
func (p *Pipeline) AddSink(id string, s Sink, inputs ...string) error {
	return p.add(&node{id: id, stage: stageSink, sink: s}, inputs)
}

func (p *Pipeline) add(n *node, inputs []string) error {
	if n.id == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: empty component id", errors.ErrInvalidConfig),
			"Pipeline", "Add", "check id")
	}
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if seen[in] {
			return errors.WrapInvalid(fmt.Errorf("%w: %s lists input %q twice", errors.ErrInvalidConfig, n.id, in),
				"Pipeline", "Add", "check inputs")
		}
		seen[in] = true
	}
	n.inputs = inputs

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pipeline", "Add", "pipeline running")
	}
	if _, exists := p.nodes[n.id]; exists {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrDuplicateID, n.id), "Pipeline", "Add", "check id")
	}
	p.nodes[n.id] = n
	return nil
}

// Validate checks the topology without running it.
func (p *Pipeline) Validate() *ValidationResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return validate(p.nodes)
}

// Run starts every component and blocks until all have stopped.
//
// Without cancellation Run returns once the sources finish and their
// events have flowed through. When ctx is cancelled sources stop first;
// transforms and sinks keep draining for up to DrainTimeout, after which
// they are cancelled and every batch still queued is finalized Dropped.
// The returned error joins component failures.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pipeline", "Run", "check state")
	}
	result := validate(p.nodes)
	if !result.OK() {
		p.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, result.Error()),
			"Pipeline", "Run", "validate topology")
	}
	for _, w := range result.Warnings {
		p.logger.Warn("Pipeline topology warning", "component", w.Component, "issue", w.Type, "message", w.Message)
	}
	p.running = true
	p.wire(result.Order)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	return p.run(ctx, result.Order)
}

// wire creates input channels and outputs in topological order.
func (p *Pipeline) wire(order []string) {
	for _, id := range order {
		n := p.nodes[id]
		n.out = newOutput(id, p.recorder)
		if n.stage != stageSource {
			n.in = make(chan event.EventArray, p.cfg.ChannelCapacity)
		}
	}
	for _, id := range order {
		n := p.nodes[id]
		for _, in := range n.inputs {
			up := p.nodes[in]
			up.out.targets = append(up.out.targets, target{id: id, ch: n.in})
		}
	}
}

func (p *Pipeline) run(ctx context.Context, order []string) error {
	sourceCtx, cancelSources := context.WithCancel(ctx)
	defer cancelSources()
	flowCtx, cancelFlow := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelFlow()

	// producers[id] counts upstream components still able to send to id.
	producers := make(map[string]*sync.WaitGroup, len(order))
	var closers sync.WaitGroup
	for _, id := range order {
		n := p.nodes[id]
		if n.stage == stageSource {
			continue
		}
		wg := &sync.WaitGroup{}
		wg.Add(len(n.inputs))
		producers[id] = wg
		closers.Add(1)
		go func(in chan event.EventArray) {
			defer closers.Done()
			wg.Wait()
			close(in)
		}(n.in)
	}

	finished := func(n *node) {
		for _, t := range n.out.targets {
			producers[t.id].Done()
		}
	}

	var (
		errMu  sync.Mutex
		errs   []error
		stages sync.WaitGroup
	)
	fail := func(n *node, err error) {
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		p.recorder.stageError(n.id, n.stage, err)
		p.logger.Error("Component stopped with error", "component", n.id, "stage", n.stage.String(), "error", err)
		errMu.Lock()
		errs = append(errs, fmt.Errorf("%s %s: %w", n.stage, n.id, err))
		errMu.Unlock()
	}

	// Consumers start before producers so nothing blocks on startup.
	for i := len(order) - 1; i >= 0; i-- {
		n := p.nodes[order[i]]
		logger := p.logger.With("component", n.id)
		stages.Add(1)
		p.recorder.status(n.id, n.stage, true)

		switch n.stage {
		case stageSink:
			go func() {
				defer stages.Done()
				defer p.recorder.status(n.id, n.stage, false)
				err := n.sink.Run(flowCtx, n.in)
				fail(n, err)
				p.drainInput(flowCtx, n)
			}()
		case stageTransform:
			go func() {
				defer stages.Done()
				defer p.recorder.status(n.id, n.stage, false)
				defer finished(n)
				err := n.task.Run(flowCtx, n.in, n.out)
				fail(n, err)
				p.drainInput(flowCtx, n)
			}()
		case stageSource:
			sender := newSourceSender(n.out, n.id, n.sourceType)
			sc := SourceContext{ID: n.id, Out: sender, Logger: logger, Acknowledgements: n.acknowledgements}
			go func() {
				defer stages.Done()
				defer p.recorder.status(n.id, n.stage, false)
				defer finished(n)
				err := n.source.Run(sourceCtx, sc)
				sender.close()
				fail(n, err)
			}()
		}
	}

	done := make(chan struct{})
	go func() {
		stages.Wait()
		closers.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Pipeline finished")
	case <-ctx.Done():
		start := time.Now()
		p.logger.Info("Pipeline shutting down", "drain_timeout", p.cfg.DrainTimeout.String())
		cancelSources()

		timer := time.NewTimer(p.cfg.DrainTimeout)
		select {
		case <-done:
			timer.Stop()
		case <-timer.C:
			p.logger.Warn("Drain timeout expired, cancelling remaining stages")
			cancelFlow()
			<-done
		}
		p.recorder.drained(time.Since(start))
	}

	return errors.Join(errs...)
}

// drainInput empties the input of a component that has stopped, so its
// producers never block on it. Leftovers are Dropped when the pipeline
// was cancelled and Errored when the component quit on its own.
func (p *Pipeline) drainInput(flowCtx context.Context, n *node) {
	status := event.Errored
	if flowCtx.Err() != nil {
		status = event.Dropped
	}
	count := 0
	for batch := range n.in {
		count += batch.Len()
		batch.Finalize(status)
	}
	if count == 0 {
		return
	}
	if status == event.Dropped {
		p.recorder.shutdownDropped(count)
	}
	p.logger.Warn("Finalized events left in stopped component input",
		"component", n.id, "status", status.String(), "events", count)
}
