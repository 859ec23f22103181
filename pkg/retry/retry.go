package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/c360/eventflow/errors"
)

// NonRetryableError marks an error that must not be retried.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps err so Do returns it without further attempts.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was marked with NonRetryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return stderrors.As(err, &nre)
}

// Config describes an exponential backoff.
type Config struct {
	MaxAttempts  int           // total attempts; <= 0 means one
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap on a single delay
	Multiplier   float64       // growth factor between delays
	AddJitter    bool          // add up to 25% random delay

	// ShouldRetry overrides the default decision. The default retries
	// everything except NonRetryable errors and errors classified as
	// invalid or fatal.
	ShouldRetry func(error) bool
}

// DefaultConfig returns the backoff used by sinks and buffer publishing.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Quick returns a config for startup probes.
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

// Persistent returns a config for resources the pipeline cannot run
// without.
func Persistent() Config {
	return Config{
		MaxAttempts:  30,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

func (c Config) normalize() (Config, error) {
	switch {
	case c.InitialDelay < 0:
		return c, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "InitialDelay cannot be negative")
	case c.MaxDelay < 0:
		return c, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "MaxDelay cannot be negative")
	case c.Multiplier < 0:
		return c, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "Multiplier cannot be negative")
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	c.Multiplier = min(c.Multiplier, 1000)
	if c.MaxDelay < c.InitialDelay {
		return c, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "MaxDelay must be >= InitialDelay")
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = retryable
	}
	return c, nil
}

func retryable(err error) bool {
	return !IsNonRetryable(err) && !errors.IsInvalid(err) && !errors.IsFatal(err)
}

func (c Config) next(delay time.Duration) time.Duration {
	grown := float64(delay) * c.Multiplier
	if grown > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(grown)
}

func (c Config) sleepFor(delay time.Duration) time.Duration {
	if !c.AddJitter || delay < 4 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(int64(delay/4)))
}

// Do runs fn until it succeeds, the attempts are exhausted, the error is
// not retryable, or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.normalize()
	if err != nil {
		return err
	}

	var lastErr error
	delay := cfg.InitialDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if !cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, stderrors.Join(ctx.Err(), lastErr))
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(cfg.sleepFor(delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w",
				attempt+1, stderrors.Join(ctx.Err(), lastErr))
		case <-timer.C:
		}
		delay = cfg.next(delay)
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts,
		stderrors.Join(errors.ErrMaxRetriesExceeded, lastErr))
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
