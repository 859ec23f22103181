package buffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
)

// Memory is a bounded in-process ring of batches.
type Memory struct {
	mu       sync.Mutex
	items    []event.EventArray
	capacity int
	size     int
	head     int // next write
	tail     int // next read
	closed   bool

	notEmpty *sync.Cond
	notFull  *sync.Cond

	stats   *Statistics
	metrics *bufferMetrics
	opts    *options
}

var _ Buffer = (*Memory)(nil)

// NewMemory creates a memory buffer holding up to capacity batches. A
// capacity below one is raised to one.
func NewMemory(capacity int, opts ...Option) (*Memory, error) {
	if capacity <= 0 {
		capacity = 1
	}
	o := applyOptions(opts)

	var metrics *bufferMetrics
	if o.registrar != nil {
		var err error
		metrics, err = newBufferMetrics(o.registrar, o.component)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewMemory", "metrics registration")
		}
	}

	m := &Memory{
		items:    make([]event.EventArray, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     o,
	}
	m.notEmpty = sync.NewCond(&m.mu)
	m.notFull = sync.NewCond(&m.mu)
	return m, nil
}

// Enqueue adds a batch according to the overflow policy.
func (m *Memory) Enqueue(ctx context.Context, batch event.EventArray) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Enqueue", "buffer closed")
	}

	var shed event.EventArray
	if m.size == m.capacity {
		m.stats.recordOverflow()
		if m.metrics != nil {
			m.metrics.overflows.Inc()
		}

		switch m.opts.policy {
		case DropOldest:
			shed = m.pop()
		case DropNewest:
			m.mu.Unlock()
			m.shed(batch)
			return errors.WrapTransient(errors.ErrBufferFull, "Buffer", "Enqueue", "drop newest batch")
		default:
			if err := m.waitForSpace(ctx); err != nil {
				m.mu.Unlock()
				return err
			}
		}
	}

	m.items[m.head] = batch
	m.head = (m.head + 1) % m.capacity
	m.size++
	m.stats.recordEnqueue()
	m.afterResize()
	m.notEmpty.Signal()
	m.mu.Unlock()

	if shed != nil {
		m.shed(shed)
	}
	return nil
}

// waitForSpace blocks with mu held until a slot frees, ctx ends or the
// buffer closes.
func (m *Memory) waitForSpace(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.notFull.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	for m.size == m.capacity && !m.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.notFull.Wait()
	}
	if m.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Enqueue", "buffer closed during wait")
	}
	return ctx.Err()
}

// Dequeue removes the oldest batch, waiting while the buffer is empty.
func (m *Memory) Dequeue(ctx context.Context) (event.EventArray, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.size == 0 && !m.closed {
		stop := context.AfterFunc(ctx, func() {
			m.mu.Lock()
			m.notEmpty.Broadcast()
			m.mu.Unlock()
		})
		defer stop()

		for m.size == 0 && !m.closed {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			m.notEmpty.Wait()
		}
	}

	if m.size == 0 {
		return nil, errors.WrapInvalid(errors.ErrChannelClosed, "Buffer", "Dequeue", "buffer closed and empty")
	}
	batch := m.pop()
	m.stats.recordDequeue()
	m.afterResize()
	m.notFull.Signal()
	return batch, nil
}

// TryDequeue removes the oldest batch without waiting.
func (m *Memory) TryDequeue() (event.EventArray, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.size == 0 {
		return nil, false
	}
	batch := m.pop()
	m.stats.recordDequeue()
	m.afterResize()
	m.notFull.Signal()
	return batch, true
}

// Drain removes every held batch, oldest first.
func (m *Memory) Drain() []event.EventArray {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]event.EventArray, 0, m.size)
	for m.size > 0 {
		out = append(out, m.pop())
		m.stats.recordDequeue()
	}
	m.afterResize()
	m.notFull.Broadcast()
	return out
}

// pop removes the tail item. mu must be held and size must be positive.
func (m *Memory) pop() event.EventArray {
	batch := m.items[m.tail]
	m.items[m.tail] = nil
	m.tail = (m.tail + 1) % m.capacity
	m.size--
	return batch
}

func (m *Memory) afterResize() {
	m.stats.updateSize(m.size)
	if m.metrics != nil {
		m.metrics.setSize(m.size, m.capacity)
	}
}

func (m *Memory) shed(batch event.EventArray) {
	batch.Finalize(event.Dropped)
	m.stats.recordDrop(batch.Len())
	if m.metrics != nil {
		m.metrics.droppedEvents.Add(float64(batch.Len()))
	}
	m.opts.logger.Warn("Buffer overflow, batch dropped",
		"policy", m.opts.policy.String(),
		"kind", batch.Kind().String(),
		"events", batch.Len())
	if m.opts.dropCallback != nil {
		m.opts.dropCallback(batch)
	}
}

// Len returns the number of batches held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Capacity returns the maximum number of batches.
func (m *Memory) Capacity() int { return m.capacity }

// Stats returns the buffer statistics.
func (m *Memory) Stats() *Statistics { return m.stats }

// Close stops accepting batches and wakes every waiter.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.notEmpty.Broadcast()
	m.notFull.Broadcast()
	return nil
}

func (m *Memory) String() string {
	return fmt.Sprintf("buffer.Memory(%d/%d, %s)", m.Len(), m.capacity, m.opts.policy)
}
