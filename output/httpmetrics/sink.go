package httpmetrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/metric"
	"github.com/c360/eventflow/pkg/retry"
	"github.com/c360/eventflow/pkg/worker"
	"github.com/c360/eventflow/value"
)

var tokenPath = value.NewPath(value.Field(TokenKey))

// Deps holds the runtime dependencies of a Sink.
type Deps struct {
	ID              string
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
	// Transport overrides the HTTP transport built from the config.
	Transport Transport
}

// partition accumulates the metrics of one token.
type partition struct {
	token   string
	metrics []*event.Metric
	records []record
	opened  time.Time
}

// job is one partition batch handed to the worker pool.
type job struct {
	token   string
	metrics []*event.Metric
	records []record
}

// Sink sends counters and gauges in newline-delimited JSON batches,
// partitioned by token. A failed request finalizes only the metrics in
// it.
type Sink struct {
	id        string
	cfg       Config
	transport Transport
	retry     retry.Config
	logger    *slog.Logger
	metrics   *sinkMetrics
	registry  *metric.MetricsRegistry
	now       func() time.Time
}

var _ engine.Sink = (*Sink)(nil)

// NewSink validates cfg and builds a sink.
func NewSink(cfg Config, deps Deps) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "HTTPMetricsSink", "New", "config validation")
	}
	id := deps.ID
	if id == "" {
		id = "http_metrics"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", id)
	}
	metrics, err := newSinkMetrics(deps.MetricsRegistry, id)
	if err != nil {
		return nil, errors.WrapTransient(err, "HTTPMetricsSink", "New", "metrics registration")
	}

	transport := deps.Transport
	if transport == nil {
		transport = NewHTTPTransport(&http.Client{Timeout: cfg.RequestTimeout}, cfg.Endpoint, cfg.Headers)
	}
	return &Sink{
		id:        id,
		cfg:       cfg,
		transport: transport,
		retry:     cfg.retryConfig(),
		logger:    logger,
		metrics:   metrics,
		registry:  deps.MetricsRegistry,
		now:       time.Now,
	}, nil
}

// Run batches metrics until in is closed, then flushes every partition
// and waits for outstanding requests.
func (s *Sink) Run(ctx context.Context, in <-chan event.EventArray) error {
	opts := []worker.Option[job]{}
	if s.registry != nil {
		opts = append(opts, worker.WithMetrics[job](s.registry, s.id))
	}
	deliver := func(_ context.Context, j job) error { return s.deliver(ctx, j) }
	pool := worker.NewPool(s.cfg.Workers, s.cfg.Workers*2, deliver, opts...)
	// Workers outlive cancellation so every queued job is finalized.
	if err := pool.Start(context.WithoutCancel(ctx)); err != nil {
		return errors.WrapFatal(err, "HTTPMetricsSink", "Run", "start workers")
	}

	s.logger.Info("HTTP metrics sink started", "endpoint", s.cfg.Endpoint,
		"max_events", s.cfg.Batch.MaxEvents, "timeout", s.cfg.Batch.Timeout.String(), "workers", s.cfg.Workers)

	partitions := make(map[string]*partition)
	ticker := time.NewTicker(tickInterval(s.cfg.Batch.Timeout))
	defer ticker.Stop()

loop:
	for {
		select {
		case batch, ok := <-in:
			if !ok {
				break loop
			}
			s.accept(ctx, pool, partitions, batch)
		case <-ticker.C:
			now := s.now()
			for token, p := range partitions {
				if now.Sub(p.opened) >= s.cfg.Batch.Timeout {
					s.flush(ctx, pool, p)
					delete(partitions, token)
				}
			}
		}
	}

	for _, p := range partitions {
		s.flush(ctx, pool, p)
	}
	if err := pool.Stop(s.cfg.RequestTimeout * time.Duration(s.retry.MaxAttempts+1)); err != nil {
		s.logger.Warn("Requests still in flight at shutdown", "error", err)
	}
	return nil
}

func tickInterval(timeout time.Duration) time.Duration {
	if d := timeout / 4; d >= 10*time.Millisecond {
		return d
	}
	return 10 * time.Millisecond
}

// accept routes each metric of batch to its partition. Anything that is
// not a sendable metric is Rejected.
func (s *Sink) accept(ctx context.Context, pool *worker.Pool[job], partitions map[string]*partition, batch event.EventArray) {
	now := s.now()
	for _, e := range batch.Events() {
		m, ok := e.(*event.Metric)
		if !ok {
			s.logger.Error("Event is not a metric", "kind", e.Kind().String())
			s.metrics.reject()
			event.Finalize(e, event.Rejected)
			continue
		}
		r, err := s.newRecord(m, now)
		if err != nil {
			s.logger.Error("Invalid metric received", "name", m.Name(), "kind", m.MetricKind().String(), "error", err)
			s.metrics.reject()
			event.Finalize(m, event.Rejected)
			continue
		}

		token := s.token(m)
		p := partitions[token]
		if p == nil {
			p = &partition{token: token, opened: now}
			partitions[token] = p
		}
		p.metrics = append(p.metrics, m)
		p.records = append(p.records, r)
		if len(p.records) >= s.cfg.Batch.MaxEvents {
			s.flush(ctx, pool, p)
			delete(partitions, token)
		}
	}
}

// token returns the metric's routing token, else the configured one.
func (s *Sink) token(m *event.Metric) string {
	if v := m.Metadata().Value().Get(tokenPath); v != nil {
		if t, ok := v.AsString(); ok && t != "" {
			return t
		}
	}
	return s.cfg.Token
}

func (s *Sink) flush(ctx context.Context, pool *worker.Pool[job], p *partition) {
	if len(p.metrics) == 0 {
		return
	}
	j := job{token: p.token, metrics: p.metrics, records: p.records}
	if err := pool.SubmitWait(ctx, j); err != nil {
		s.logger.Error("Could not queue request", "events", len(j.metrics), "error", err)
		s.finalize(j.metrics, event.Errored)
	}
}

// deliver encodes and sends one partition batch, then reports the
// outcome to its metrics only.
func (s *Sink) deliver(ctx context.Context, j job) error {
	if err := ctx.Err(); err != nil {
		s.finalize(j.metrics, event.Dropped)
		return err
	}
	body, err := encodeRecords(j.records)
	if err != nil {
		s.logger.Error("Failed to encode request", "events", len(j.metrics), "error", err)
		s.metrics.request("rejected", 0, 0)
		s.finalize(j.metrics, event.Rejected)
		return err
	}

	start := time.Now()
	req := Request{Token: j.token, Body: body, Events: len(j.metrics)}
	err = retry.Do(ctx, s.retry, func() error { return s.transport.Send(ctx, req) })
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Error("Request failed", "events", len(j.metrics), "bytes", len(body), "error", err)
		s.metrics.request("errored", elapsed, 0)
		s.finalize(j.metrics, event.Errored)
		return err
	}
	s.metrics.request("delivered", elapsed, len(j.metrics))
	s.finalize(j.metrics, event.Delivered)
	return nil
}

func (s *Sink) finalize(metrics []*event.Metric, status event.EventStatus) {
	event.MetricArray(metrics).Finalize(status)
}

// Register adds the "http_metrics" sink type to registry.
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(component.Registration{
		Name:        "http_metrics",
		Kind:        component.KindSink,
		Description: "Sends counters and gauges to an HTTP collector in token partitioned batches",
		Factory: func(id string, opts component.Options, deps component.Dependencies) (any, error) {
			cfg := DefaultConfig()
			if err := opts.Decode(&cfg); err != nil {
				return nil, err
			}
			return NewSink(cfg, Deps{
				ID:              id,
				Logger:          deps.GetLoggerWithComponent(id),
				MetricsRegistry: deps.MetricsRegistry,
			})
		},
	})
}
