// Package retry provides exponential backoff for transient failures.
//
// Sinks use it around transport deliveries and the JetStream buffer uses
// it around publishes:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return transport.Deliver(ctx, partition, body)
//	})
//
// By default an error is retried unless it was wrapped with NonRetryable
// or classified invalid or fatal by the errors package; a malformed batch
// will not become valid on the next attempt. Config.ShouldRetry replaces
// that decision.
//
// Do stops as soon as ctx is done, during an attempt or during backoff.
// The returned error wraps both the context error and the last attempt's
// error. When attempts run out it wraps errors.ErrMaxRetriesExceeded.
package retry
