package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/c360/eventflow/metric"
)

type testWork struct {
	id    int
	delay time.Duration
	fail  bool
}

func noop(_ context.Context, _ testWork) error { return nil }

func TestNewPool_Defaults(t *testing.T) {
	pool := NewPool(5, 100, noop)
	if pool.workers != 5 || pool.queueSize != 100 {
		t.Errorf("Expected 5 workers and queue 100, got %d and %d", pool.workers, pool.queueSize)
	}

	pool = NewPool(0, 0, noop)
	if pool.workers != 10 {
		t.Errorf("Expected default 10 workers, got %d", pool.workers)
	}
	if pool.queueSize != 1000 {
		t.Errorf("Expected default queue size 1000, got %d", pool.queueSize)
	}
}

func TestNewPool_NilProcessor(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for nil processor")
		}
	}()
	NewPool[testWork](5, 100, nil)
}

func TestPool_Lifecycle(t *testing.T) {
	pool := NewPool(2, 10, noop)

	if err := pool.Submit(testWork{id: 1}); !errors.Is(err, ErrPoolNotStarted) {
		t.Errorf("Expected ErrPoolNotStarted, got %v", err)
	}

	ctx := context.Background()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}
	if err := pool.Start(ctx); !errors.Is(err, ErrPoolAlreadyStarted) {
		t.Errorf("Expected ErrPoolAlreadyStarted, got %v", err)
	}

	if err := pool.Stop(time.Second); err != nil {
		t.Fatalf("Failed to stop pool: %v", err)
	}
	if err := pool.Submit(testWork{id: 2}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped, got %v", err)
	}
	if err := pool.SubmitWait(ctx, testWork{id: 3}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped from SubmitWait, got %v", err)
	}
	if err := pool.Stop(time.Second); err != nil {
		t.Errorf("Second Stop should be a no-op, got %v", err)
	}
}

func TestPool_StopDrainsQueuedWork(t *testing.T) {
	var processed int64
	pool := NewPool(1, 10, func(_ context.Context, w testWork) error {
		time.Sleep(w.delay)
		atomic.AddInt64(&processed, 1)
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := pool.Submit(testWork{id: i, delay: 5 * time.Millisecond}); err != nil {
			t.Fatalf("Failed to submit work %d: %v", i, err)
		}
	}
	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("Failed to stop pool: %v", err)
	}
	if got := atomic.LoadInt64(&processed); got != 5 {
		t.Errorf("Expected 5 processed items after Stop, got %d", got)
	}
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 2, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}
	defer pool.Stop(5 * time.Second)
	defer close(release)

	var full int
	for i := 0; i < 6; i++ {
		if err := pool.Submit(testWork{id: i}); errors.Is(err, ErrQueueFull) {
			full++
		}
	}
	// One item is held by the worker, two wait in the queue.
	if full < 3 {
		t.Errorf("Expected at least 3 rejected submissions, got %d", full)
	}
	if pool.Stats().Dropped != int64(full) {
		t.Errorf("Stats should count %d dropped items, got %d", full, pool.Stats().Dropped)
	}
}

func TestPool_SubmitWaitBlocksUntilCapacity(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}
	defer pool.Stop(5 * time.Second)

	// Fill the worker and the queue.
	if err := pool.SubmitWait(context.Background(), testWork{id: 1}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for pool.Stats().QueueDepth != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := pool.SubmitWait(context.Background(), testWork{id: 2}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.SubmitWait(ctx, testWork{id: 3}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected SubmitWait to block until the deadline, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- pool.SubmitWait(context.Background(), testWork{id: 4}) }()
	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected SubmitWait to succeed once capacity frees, got %v", err)
		}
	case <-time.After(time.Second):
		t.Error("SubmitWait did not unblock")
	}
}

func TestPool_ProcessingErrors(t *testing.T) {
	pool := NewPool(2, 10, func(_ context.Context, w testWork) error {
		if w.fail {
			return errors.New("simulated error")
		}
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := pool.Submit(testWork{id: i, fail: i%2 == 0}); err != nil {
			t.Errorf("Failed to submit work %d: %v", i, err)
		}
	}
	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatal(err)
	}

	stats := pool.Stats()
	if stats.Processed != 10 {
		t.Errorf("Expected 10 processed items, got %d", stats.Processed)
	}
	if stats.Failed != 5 {
		t.Errorf("Expected 5 failed items, got %d", stats.Failed)
	}
}

func TestPool_ContextCancellationStopsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(2, 10, func(ctx context.Context, _ testWork) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		_ = pool.Submit(testWork{id: i})
	}

	cancel()
	if err := pool.Stop(time.Second); err != nil {
		t.Fatalf("Workers should exit after cancellation: %v", err)
	}
}

func TestPool_ConcurrentSubmissions(t *testing.T) {
	var processed int64
	pool := NewPool(5, 100, func(_ context.Context, _ testWork) error {
		atomic.AddInt64(&processed, 1)
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := pool.SubmitWait(context.Background(), testWork{id: id*10 + j}); err != nil {
					t.Errorf("submitter %d: %v", id, err)
				}
			}
		}(i)
	}
	wg.Wait()

	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&processed); got != 100 {
		t.Errorf("Expected 100 processed items, got %d", got)
	}
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(1, 4, noop, WithMetrics[testWork](registry, "http_out"))
	if pool.metrics == nil {
		t.Fatal("Expected metrics to be initialized")
	}
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		_ = pool.Submit(testWork{id: i})
	}
	if err := pool.Stop(time.Second); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(pool.metrics.submitted); got != 3 {
		t.Errorf("Expected 3 submitted, got %v", got)
	}
	if got := testutil.ToFloat64(pool.metrics.processed.WithLabelValues("success")); got != 3 {
		t.Errorf("Expected 3 successful, got %v", got)
	}
}
