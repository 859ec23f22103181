// Package natsclient manages the NATS connection behind JetStream buffers.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned when the connection is used before Connect.
var ErrNotConnected = stderrors.New("not connected to NATS")

// Client owns one NATS connection and its JetStream context.
type Client struct {
	urls   []string
	status atomic.Int32
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream

	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	connectRetry  retry.Config

	// Sensitive; cleared on Close.
	username string
	password string
	token    string

	clientName string
	metrics    *clientMetrics

	onDisconnect func(error)
	onReconnect  func()

	mu     sync.RWMutex
	closed atomic.Bool
}

// NewClient creates a client for the given servers. Nothing is dialed
// until Connect.
func NewClient(urls []string, opts ...ClientOption) (*Client, error) {
	if len(urls) == 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: no NATS urls", errors.ErrMissingConfig),
			"Client", "NewClient", "check urls")
	}
	c := &Client{
		urls:          urls,
		logger:        slog.Default().With("component", "nats"),
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		connectRetry:  retry.Quick(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.setStatus(StatusDisconnected)
	return c, nil
}

// URL returns the comma-separated server list.
func (c *Client) URL() string {
	return strings.Join(c.urls, ",")
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
	c.metrics.status(s)
}

// IsHealthy returns true if the connection is usable.
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Conn returns the underlying connection, nil before Connect.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// JetStream returns the JetStream context of a connected client.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "JetStream", "check connection")
	}
	return c.js, nil
}

// connectionOptions builds the nats.go options from the client settings.
func (c *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

// Connect dials the servers, retrying with backoff, and creates the
// JetStream context.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStopped, "Client", "Connect", "check state")
	}
	if c.IsHealthy() {
		return nil
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.URL())

	opts := c.connectionOptions()
	err := retry.Do(ctx, c.connectRetry, func() error {
		conn, err := nats.Connect(c.URL(), opts...)
		if err != nil {
			c.metrics.connectFailed()
			c.logger.Debug("NATS connection attempt failed", "error", err)
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return errors.WrapFatal(err, "Client", "Connect", "create jetstream context")
		}

		c.mu.Lock()
		c.conn, c.js = conn, js
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		c.setStatus(StatusDisconnected)
		return err
	}

	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "server", c.Conn().ConnectedUrlRedacted())
	return nil
}

// WaitForConnection blocks until the client is connected or ctx is done.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Client", "WaitForConnection", "wait")
		case <-ticker.C:
		}
	}
}

// Close drains the connection, bounded by ctx, and clears credentials.
// It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.conn, c.js = nil, nil
	c.username, c.password, c.token = "", "", ""
	c.mu.Unlock()

	if conn == nil {
		c.setStatus(StatusClosed)
		return nil
	}

	done := make(chan struct{})
	drainErr := conn.Drain()
	if drainErr != nil {
		conn.Close()
	}
	go func() {
		defer close(done)
		for !conn.IsClosed() {
			time.Sleep(10 * time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		conn.Close()
	}
	c.setStatus(StatusClosed)
	if drainErr != nil {
		return errors.WrapTransient(drainErr, "Client", "Close", "drain connection")
	}
	return nil
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	c.setStatus(StatusConnected)
	c.metrics.reconnected()
	c.logger.Info("NATS reconnected", "server", conn.ConnectedUrlRedacted())
	if c.onReconnect != nil {
		c.onReconnect()
	}
}

func (c *Client) handleClosed(_ *nats.Conn) {
	if !c.closed.Load() {
		c.logger.Error("NATS connection closed; reconnect attempts exhausted")
		c.setStatus(StatusDisconnected)
		return
	}
	c.setStatus(StatusClosed)
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	c.logger.Error("NATS async error", "subject", subject, "error", err)
}
