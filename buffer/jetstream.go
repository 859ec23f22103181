package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/pkg/retry"
)

// JetStreamConfig describes the stream and durable consumer backing a
// JetStream buffer.
type JetStreamConfig struct {
	Stream     string        `json:"stream" yaml:"stream"`
	Subject    string        `json:"subject" yaml:"subject"`
	Consumer   string        `json:"consumer" yaml:"consumer"`
	MaxAge     time.Duration `json:"max_age" yaml:"max_age"`
	AckWait    time.Duration `json:"ack_wait" yaml:"ack_wait"`
	MaxDeliver int           `json:"max_deliver" yaml:"max_deliver"`
	// PollInterval bounds each fetch so Dequeue notices cancellation.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	Retry        retry.Config  `json:"-" yaml:"-"`
}

// DefaultJetStreamConfig returns a config for the given stream name.
func DefaultJetStreamConfig(stream string) JetStreamConfig {
	return JetStreamConfig{
		Stream:       stream,
		Subject:      "eventflow.buffer." + stream,
		Consumer:     stream + "-consumer",
		AckWait:      30 * time.Second,
		MaxDeliver:   -1,
		PollInterval: time.Second,
		Retry:        retry.Quick(),
	}
}

// Validate checks the config.
func (c JetStreamConfig) Validate() error {
	switch {
	case c.Stream == "":
		return errors.WrapInvalid(fmt.Errorf("%w: stream", errors.ErrMissingConfig),
			"JetStreamConfig", "Validate", "check stream")
	case c.Subject == "":
		return errors.WrapInvalid(fmt.Errorf("%w: subject", errors.ErrMissingConfig),
			"JetStreamConfig", "Validate", "check subject")
	case c.Consumer == "":
		return errors.WrapInvalid(fmt.Errorf("%w: consumer", errors.ErrMissingConfig),
			"JetStreamConfig", "Validate", "check consumer")
	case c.PollInterval <= 0:
		return errors.WrapInvalid(fmt.Errorf("%w: poll_interval must be positive", errors.ErrInvalidConfig),
			"JetStreamConfig", "Validate", "check poll interval")
	}
	return nil
}

// JetStream is a durable buffer. Each batch is one message in the
// msgpack batch encoding.
//
// Enqueue finalizes the batch Delivered once the publish is acknowledged
// by the server. Dequeue attaches a fresh batch notifier to the decoded
// events and acknowledges the message when they resolve: Delivered and
// Dropped ack, Errored naks for redelivery, Rejected terminates. A batch
// whose outcome never arrives is redelivered after AckWait.
type JetStream struct {
	js       jetstream.JetStream
	consumer jetstream.Consumer
	cfg      JetStreamConfig
	logger   *slog.Logger
	closed   atomic.Bool
}

var _ Buffer = (*JetStream)(nil)

// NewJetStream creates or updates the stream and durable consumer.
func NewJetStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig, logger *slog.Logger) (*JetStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default().With("component", "jetstream-buffer")
	}

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
		MaxAge:   cfg.MaxAge,
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "JetStream", "NewJetStream", fmt.Sprintf("create stream %s", cfg.Stream))
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		FilterSubject: cfg.Subject,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "JetStream", "NewJetStream", fmt.Sprintf("create consumer %s", cfg.Consumer))
	}

	return &JetStream{js: js, consumer: consumer, cfg: cfg, logger: logger}, nil
}

// Enqueue publishes the batch, retrying transient failures.
func (b *JetStream) Enqueue(ctx context.Context, batch event.EventArray) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	if b.closed.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "JetStream", "Enqueue", "buffer closed")
	}

	batch = b.rejectInvalid(batch)
	if batch == nil {
		return nil
	}
	data, err := event.EncodeArray(batch)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, b.cfg.Retry, func() error {
		_, err := b.js.Publish(ctx, b.cfg.Subject, data)
		return err
	})
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrDeliveryFailure, err),
			"JetStream", "Enqueue", fmt.Sprintf("publish to %s", b.cfg.Subject))
	}

	batch.Finalize(event.Delivered)
	return nil
}

// rejectInvalid finalizes metrics that cannot be encoded as Rejected and
// returns the rest, or nil when nothing is left.
func (b *JetStream) rejectInvalid(batch event.EventArray) event.EventArray {
	metrics, ok := batch.(event.MetricArray)
	if !ok {
		return batch
	}
	kept := make(event.MetricArray, 0, len(metrics))
	for _, m := range metrics {
		if err := m.Validate(); err != nil {
			b.logger.Error("Rejecting metric that cannot be buffered", "name", m.Name(), "error", err)
			event.Finalize(m, event.Rejected)
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// closedFetchWait bounds each fetch once the buffer is closed; the first
// empty fetch ends the drain.
const closedFetchWait = 250 * time.Millisecond

// Dequeue fetches the next batch. Messages that fail to decode are
// terminated and skipped. After Close it keeps returning stored batches
// until a fetch comes back empty, then reports ErrChannelClosed.
func (b *JetStream) Dequeue(ctx context.Context) (event.EventArray, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		closed := b.closed.Load()
		wait := b.cfg.PollInterval
		if closed && wait > closedFetchWait {
			wait = closedFetchWait
		}

		msg, err := b.consumer.Next(jetstream.FetchMaxWait(wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				if closed {
					return nil, errors.WrapInvalid(errors.ErrChannelClosed, "JetStream", "Dequeue", "buffer closed")
				}
				continue
			}
			return nil, errors.WrapTransient(err, "JetStream", "Dequeue", "fetch message")
		}

		batch, err := event.DecodeArray(msg.Data())
		if err != nil {
			b.logger.Error("Terminating undecodable buffered batch", "error", err)
			if termErr := msg.Term(); termErr != nil {
				b.logger.Warn("Failed to terminate message", "error", termErr)
			}
			continue
		}

		b.attachAck(batch, msg)
		return batch, nil
	}
}

func (b *JetStream) attachAck(batch event.EventArray, msg jetstream.Msg) {
	notifier := event.NewBatchNotifier(func(status event.EventStatus) {
		var err error
		switch status {
		case event.Errored:
			err = msg.Nak()
		case event.Rejected:
			err = msg.Term()
		default:
			err = msg.Ack()
		}
		if err != nil {
			b.logger.Warn("Failed to acknowledge buffered batch", "status", status.String(), "error", err)
		}
	})
	for _, e := range batch.Events() {
		e.Metadata().AddFinalizer(notifier.NewFinalizer())
	}
	notifier.Seal()
}

// Len returns the number of messages the consumer has not yet received.
// It returns 0 when the server cannot be reached.
func (b *JetStream) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	info, err := b.consumer.Info(ctx)
	if err != nil {
		return 0
	}
	return int(info.NumPending)
}

// Close stops the buffer. The connection belongs to the caller.
func (b *JetStream) Close() error {
	b.closed.Store(true)
	return nil
}
