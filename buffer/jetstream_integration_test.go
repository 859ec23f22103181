package buffer

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
)

const natsImage = "nats:2.11.7-alpine"

// startJetStream runs a NATS server with JetStream enabled in a container.
func startJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping JetStream integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        natsImage,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          []string{"--port", "4222", "--http_port", "8222", "--js"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(30*time.Second),
			),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("NATS container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	conn, err := nats.Connect(fmt.Sprintf("nats://%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	js, err := jetstream.New(conn)
	require.NoError(t, err)
	return js
}

func newTestJetStream(t *testing.T, js jetstream.JetStream, name string) *JetStream {
	t.Helper()
	cfg := DefaultJetStreamConfig(name)
	cfg.AckWait = time.Second
	cfg.PollInterval = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	buf, err := NewJetStream(ctx, js, cfg, nil)
	require.NoError(t, err)
	return buf
}

func TestJetStream_RoundTripAndAck(t *testing.T) {
	js := startJetStream(t)
	buf := newTestJetStream(t, js, "roundtrip")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	batch, status := tracked("durable")
	require.NoError(t, buf.Enqueue(ctx, batch))

	// The upstream source is released once the broker has the batch.
	got, done := status()
	require.True(t, done)
	assert.Equal(t, event.Delivered, got)

	out, err := buf.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "durable", message(t, out))
	out.Finalize(event.Delivered)

	assert.Eventually(t, func() bool { return buf.Len() == 0 }, 5*time.Second, 100*time.Millisecond)

	short, cancelShort := context.WithTimeout(ctx, 2*time.Second)
	defer cancelShort()
	_, err = buf.Dequeue(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJetStream_ErroredBatchIsRedelivered(t *testing.T) {
	js := startJetStream(t)
	buf := newTestJetStream(t, js, "redeliver")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	batch, _ := tracked("retry-me")
	require.NoError(t, buf.Enqueue(ctx, batch))

	first, err := buf.Dequeue(ctx)
	require.NoError(t, err)
	first.Finalize(event.Errored)

	second, err := buf.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "retry-me", message(t, second))
	second.Finalize(event.Delivered)
}

func TestJetStream_SkipsUndecodableMessages(t *testing.T) {
	js := startJetStream(t)
	buf := newTestJetStream(t, js, "poison")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	_, err := js.Publish(ctx, buf.cfg.Subject, []byte{0xc1})
	require.NoError(t, err)
	batch, _ := tracked("after-poison")
	require.NoError(t, buf.Enqueue(ctx, batch))

	out, err := buf.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "after-poison", message(t, out))
	out.Finalize(event.Delivered)
}

func TestJetStream_Closed(t *testing.T) {
	js := startJetStream(t)
	buf := newTestJetStream(t, js, "closed")
	require.NoError(t, buf.Close())

	batch, _ := tracked("late")
	err := buf.Enqueue(context.Background(), batch)
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
	_, err = buf.Dequeue(context.Background())
	assert.ErrorIs(t, err, errors.ErrChannelClosed)
}

func TestJetStream_DequeueDrainsAfterClose(t *testing.T) {
	js := startJetStream(t)
	buf := newTestJetStream(t, js, "drain")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	for _, msg := range []string{"one", "two"} {
		batch, _ := tracked(msg)
		require.NoError(t, buf.Enqueue(ctx, batch))
	}
	require.NoError(t, buf.Close())

	for _, want := range []string{"one", "two"} {
		out, err := buf.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, message(t, out))
		out.Finalize(event.Delivered)
	}
	_, err := buf.Dequeue(ctx)
	assert.ErrorIs(t, err, errors.ErrChannelClosed)
}

func TestJetStream_RejectsUnencodableMetrics(t *testing.T) {
	js := startJetStream(t)
	buf := newTestJetStream(t, js, "nonfinite")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	okF := event.NewEventFinalizer(nil)
	badF := event.NewEventFinalizer(nil)
	batch := event.MetricArray{
		event.NewMetric(event.MetricSeries{Name: "hits"}, event.Incremental, event.Counter{Value: 2}, event.WithFinalizer(okF)),
		event.NewMetric(event.MetricSeries{Name: "temp"}, event.Absolute, event.Gauge{Value: math.NaN()}, event.WithFinalizer(badF)),
	}
	require.NoError(t, buf.Enqueue(ctx, batch))

	status, done := badF.Status()
	require.True(t, done)
	assert.Equal(t, event.Rejected, status)
	status, done = okF.Status()
	require.True(t, done)
	assert.Equal(t, event.Delivered, status)

	out, err := buf.Dequeue(ctx)
	require.NoError(t, err)
	metrics, ok := out.(event.MetricArray)
	require.True(t, ok)
	require.Len(t, metrics, 1)
	assert.Equal(t, "hits", metrics[0].Name())
	out.Finalize(event.Delivered)
}

func TestJetStreamConfig_Validate(t *testing.T) {
	cfg := DefaultJetStreamConfig("ok")
	require.NoError(t, cfg.Validate())

	missing := cfg
	missing.Subject = ""
	assert.ErrorIs(t, missing.Validate(), errors.ErrMissingConfig)

	badPoll := cfg
	badPoll.PollInterval = 0
	assert.ErrorIs(t, badPoll.Validate(), errors.ErrInvalidConfig)
}
