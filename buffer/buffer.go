package buffer

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
)

// Buffer sits between stages and holds whole batches.
//
// Ownership: when Enqueue returns nil the buffer owns the batch. When it
// returns an error wrapping errors.ErrBufferFull the buffer shed the
// batch and already finalized it Dropped. Any other error leaves the
// batch with the caller.
type Buffer interface {
	// Enqueue accepts a batch or signals backpressure.
	Enqueue(ctx context.Context, batch event.EventArray) error

	// Dequeue blocks until a batch is available. It returns an error
	// wrapping errors.ErrChannelClosed once the buffer is closed and
	// empty.
	Dequeue(ctx context.Context) (event.EventArray, error)

	// Len returns the number of batches waiting.
	Len() int

	// Close stops accepting batches. Batches already held remain
	// available to Dequeue.
	Close() error
}

// OverflowPolicy defines how a full memory buffer treats new batches.
type OverflowPolicy int

const (
	// Block makes Enqueue wait for space. This is the default so that
	// backpressure reaches the source.
	Block OverflowPolicy = iota

	// DropOldest evicts the oldest batch to make room.
	DropOldest

	// DropNewest sheds the incoming batch.
	DropNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case Block:
		return "block"
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseOverflowPolicy parses the configuration spelling of a policy. An
// empty string selects Block.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return Block, nil
	case "drop_oldest":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	default:
		return Block, errors.WrapInvalid(
			fmt.Errorf("%w: unknown overflow policy %q", errors.ErrInvalidConfig, s),
			"buffer", "ParseOverflowPolicy", "parse policy")
	}
}

// DropCallback is called, outside the buffer lock, with every batch the
// buffer sheds. The batch has already been finalized Dropped.
type DropCallback func(batch event.EventArray)
