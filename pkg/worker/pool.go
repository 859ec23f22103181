package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eventflow/metric"
)

// Pool runs a fixed number of workers over a bounded queue of T.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error

	workChan chan T
	metrics  *poolMetrics
	wg       sync.WaitGroup

	// lifecycleMu is held for reading while submitting, so Stop cannot
	// close the queue under a blocked SubmitWait.
	lifecycleMu sync.RWMutex
	started     bool
	stopped     bool
	runCtx      context.Context

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	registrar metric.MetricsRegistrar
	component string
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	submitted  prometheus.Counter
	dropped    prometheus.Counter
	processed  *prometheus.CounterVec
	duration   prometheus.Histogram
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithMetrics registers the pool's collectors under component.
func WithMetrics[T any](registrar metric.MetricsRegistrar, component string) Option[T] {
	return func(p *Pool[T]) {
		p.registrar = registrar
		p.component = component
	}
}

// NewPool creates a pool. Non-positive sizes fall back to 10 workers and
// a queue of 1000. A nil processor panics.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 10
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registrar != nil && p.component != "" {
		p.initializeMetrics()
	}
	return p
}

func (p *Pool[T]) initializeMetrics() {
	labels := prometheus.Labels{"component": p.component}
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventflow", Subsystem: "worker_pool", Name: "queue_depth",
			Help: "Queued work items", ConstLabels: labels,
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "worker_pool", Name: "submitted_total",
			Help: "Work items accepted", ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "worker_pool", Name: "dropped_total",
			Help: "Work items refused because the queue was full", ConstLabels: labels,
		}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflow", Subsystem: "worker_pool", Name: "processed_total",
			Help: "Work items processed by outcome", ConstLabels: labels,
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventflow", Subsystem: "worker_pool", Name: "processing_duration_seconds",
			Help: "Time spent on one work item", ConstLabels: labels,
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),
	}

	// Registration failures leave the collector unregistered; the pool
	// still records into it.
	_ = p.registrar.RegisterGauge(p.component, "worker_pool_queue_depth", m.queueDepth)
	_ = p.registrar.RegisterCounter(p.component, "worker_pool_submitted_total", m.submitted)
	_ = p.registrar.RegisterCounter(p.component, "worker_pool_dropped_total", m.dropped)
	_ = p.registrar.RegisterCounterVec(p.component, "worker_pool_processed_total", m.processed)
	_ = p.registrar.RegisterHistogram(p.component, "worker_pool_processing_duration_seconds", m.duration)
	p.metrics = m
}

// Start launches the workers. They exit when ctx is done or after Stop
// has drained the queue.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	p.runCtx = ctx
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.started = true
	return nil
}

func (p *Pool[T]) checkOpen() error {
	switch {
	case !p.started:
		return ErrPoolNotStarted
	case p.stopped:
		return ErrPoolStopped
	}
	return nil
}

// Submit enqueues work without blocking. It returns ErrQueueFull when the
// queue is at capacity.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.RLock()
	defer p.lifecycleMu.RUnlock()

	if err := p.checkOpen(); err != nil {
		return err
	}
	select {
	case p.workChan <- work:
		p.accepted()
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// SubmitWait enqueues work, blocking while the queue is full until ctx or
// the pool's run context is done.
func (p *Pool[T]) SubmitWait(ctx context.Context, work T) error {
	p.lifecycleMu.RLock()
	defer p.lifecycleMu.RUnlock()

	if err := p.checkOpen(); err != nil {
		return err
	}
	select {
	case p.workChan <- work:
		p.accepted()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.runCtx.Done():
		return ErrPoolStopped
	}
}

func (p *Pool[T]) accepted() {
	p.submitted.Add(1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
		p.metrics.queueDepth.Set(float64(len(p.workChan)))
	}
}

// Stop closes the queue and waits up to timeout for queued work to
// finish.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.workChan)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats is a point-in-time view of a pool.
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}
			start := time.Now()
			err := p.processor(ctx, work)

			p.processed.Add(1)
			if err != nil {
				p.failed.Add(1)
			}
			if p.metrics != nil {
				status := "success"
				if err != nil {
					status = "error"
				}
				p.metrics.processed.WithLabelValues(status).Inc()
				p.metrics.duration.Observe(time.Since(start).Seconds())
				p.metrics.queueDepth.Set(float64(len(p.workChan)))
			}
		}
	}
}
