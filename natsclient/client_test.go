package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/metric"
	"github.com/c360/eventflow/pkg/retry"
)

func TestConnectionStatus_String(t *testing.T) {
	tests := map[ConnectionStatus]string{
		StatusDisconnected:   "disconnected",
		StatusConnecting:     "connecting",
		StatusConnected:      "connected",
		StatusReconnecting:   "reconnecting",
		StatusClosed:         "closed",
		ConnectionStatus(42): "unknown",
	}
	for status, want := range tests {
		assert.Equal(t, want, status.String())
	}
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	c, err := NewClient([]string{"nats://a:4222", "nats://b:4222"},
		WithMaxReconnects(5),
		WithReconnectWait(0),
		WithCredentials("user", "pass"),
		WithToken("tok"),
		WithName("eventflow"),
	)
	require.NoError(t, err)
	assert.Equal(t, "nats://a:4222,nats://b:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, 5, c.maxReconnects)
	assert.Equal(t, 2*time.Second, c.reconnectWait, "zero keeps the default")

	// Nine base options plus credentials, token and name.
	assert.Len(t, c.connectionOptions(), 12)
}

func TestClient_JetStreamBeforeConnect(t *testing.T) {
	c, err := NewClient([]string{"nats://127.0.0.1:4222"})
	require.NoError(t, err)
	_, err = c.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Nil(t, c.Conn())
}

func TestClient_ConnectFailure(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, err := NewClient([]string{"nats://127.0.0.1:1"},
		WithTimeout(200*time.Millisecond),
		WithConnectRetry(retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		WithMetrics(registry),
	)
	require.NoError(t, err)

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, errors.ErrMaxRetriesExceeded)
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.connectFailure))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.connected))
}

func TestClient_CloseWithoutConnect(t *testing.T) {
	c, err := NewClient([]string{"nats://127.0.0.1:4222"}, WithCredentials("user", "secret"))
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()), "second close is a no-op")
	assert.Equal(t, StatusClosed, c.Status())
	assert.Empty(t, c.password)

	err = c.Connect(context.Background())
	assert.True(t, errors.IsFatal(err))
}

func TestClient_WaitForConnectionTimesOut(t *testing.T) {
	c, err := NewClient([]string{"nats://127.0.0.1:4222"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.Error(t, c.WaitForConnection(ctx))
}

func TestWithMetrics_DuplicateRegistration(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	_, err := NewClient([]string{"nats://x:4222"}, WithMetrics(registry))
	require.NoError(t, err)
	_, err = NewClient([]string{"nats://x:4222"}, WithMetrics(registry))
	assert.Error(t, err)
}
