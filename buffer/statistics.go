package buffer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics counts buffer activity. Counters are in batches except
// droppedEvents, which counts the events inside shed batches.
type Statistics struct {
	enqueued      atomic.Int64
	dequeued      atomic.Int64
	overflows     atomic.Int64
	dropped       atomic.Int64
	droppedEvents atomic.Int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) recordEnqueue() { s.enqueued.Add(1) }

func (s *Statistics) recordDequeue() { s.dequeued.Add(1) }

func (s *Statistics) recordOverflow() { s.overflows.Add(1) }

func (s *Statistics) recordDrop(events int) {
	s.dropped.Add(1)
	s.droppedEvents.Add(int64(events))
}

func (s *Statistics) updateSize(size int) {
	s.mu.Lock()
	s.currentSize = int64(size)
	if s.currentSize > s.maxSize {
		s.maxSize = s.currentSize
	}
	s.mu.Unlock()
}

// Enqueued returns the number of accepted batches.
func (s *Statistics) Enqueued() int64 { return s.enqueued.Load() }

// Dequeued returns the number of batches handed out.
func (s *Statistics) Dequeued() int64 { return s.dequeued.Load() }

// Overflows returns how often an Enqueue found the buffer full.
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// Dropped returns the number of shed batches.
func (s *Statistics) Dropped() int64 { return s.dropped.Load() }

// DroppedEvents returns the number of events in shed batches.
func (s *Statistics) DroppedEvents() int64 { return s.droppedEvents.Load() }

// CurrentSize returns the batches currently held.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the high-water mark.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// DropRate returns shed batches as a fraction of enqueue attempts.
func (s *Statistics) DropRate() float64 {
	attempts := s.Enqueued() + s.Dropped()
	if attempts == 0 {
		return 0
	}
	return float64(s.Dropped()) / float64(attempts)
}

// Uptime returns how long the buffer has existed.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// StatsSummary is a point-in-time copy of Statistics.
type StatsSummary struct {
	Enqueued      int64         `json:"enqueued"`
	Dequeued      int64         `json:"dequeued"`
	Overflows     int64         `json:"overflows"`
	Dropped       int64         `json:"dropped"`
	DroppedEvents int64         `json:"dropped_events"`
	CurrentSize   int64         `json:"current_size"`
	MaxSize       int64         `json:"max_size"`
	DropRate      float64       `json:"drop_rate"`
	Uptime        time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Enqueued:      s.Enqueued(),
		Dequeued:      s.Dequeued(),
		Overflows:     s.Overflows(),
		Dropped:       s.Dropped(),
		DroppedEvents: s.DroppedEvents(),
		CurrentSize:   s.CurrentSize(),
		MaxSize:       s.MaxSize(),
		DropRate:      s.DropRate(),
		Uptime:        s.Uptime(),
	}
}
