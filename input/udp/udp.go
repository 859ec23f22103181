package udp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/metric"
	"github.com/c360/eventflow/pkg/retry"
	"github.com/c360/eventflow/value"
)

// SourceType is stamped into every event's source_type field.
const SourceType = "socket"

const (
	defaultSocketBuffer = 2 * 1024 * 1024
	readPollInterval    = 100 * time.Millisecond
)

var (
	sourceTypePath = value.NewPath(value.Field("source_type"))
	timestampPath  = value.NewPath(value.Field("timestamp"))
)

// Deps holds the runtime dependencies of a Source.
type Deps struct {
	ID              string
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Source reads datagrams from a UDP socket and emits one LogArray per
// datagram.
type Source struct {
	id       string
	cfg      Config
	hostPath value.Path
	portPath value.Path
	logger   *slog.Logger
	metrics  *sourceMetrics
	retry    retry.Config

	mu   sync.RWMutex
	conn *net.UDPConn
}

var _ engine.Source = (*Source)(nil)

// NewSource validates cfg and builds a source. The socket is bound by Run.
func NewSource(cfg Config, deps Deps) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "UDPSource", "New", "config validation")
	}

	id := deps.ID
	if id == "" {
		id = "udp"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", id)
	}

	metrics, err := newSourceMetrics(deps.MetricsRegistry, id)
	if err != nil {
		return nil, errors.WrapTransient(err, "UDPSource", "New", "metrics registration")
	}

	// Validate already parsed both keys.
	hostPath, _ := value.ParsePath(cfg.HostKey)
	portPath, _ := value.ParsePath(cfg.PortKey)

	return &Source{
		id:       id,
		cfg:      cfg,
		hostPath: hostPath,
		portPath: portPath,
		logger:   logger,
		metrics:  metrics,
		retry:    retry.Quick(),
	}, nil
}

// Addr returns the bound address while Run is active, else nil.
func (s *Source) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Run binds the socket and reads until ctx ends or the output closes.
func (s *Source) Run(ctx context.Context, sc engine.SourceContext) error {
	var conn *net.UDPConn
	err := retry.Do(ctx, s.retry, func() error {
		c, err := s.bind()
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return errors.WrapFatal(err, "UDPSource", "Run", fmt.Sprintf("bind %s", s.cfg.Address))
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()

	s.logger.Info("UDP source listening", "address", conn.LocalAddr().String(),
		"max_length", s.cfg.maxLength(), "framing", s.cfg.Framing)
	return s.readLoop(ctx, conn, sc)
}

func (s *Source) bind() (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Address)
	if err != nil {
		return nil, errors.WrapInvalid(err, "UDPSource", "bind", "resolve address")
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.WrapTransient(err, "UDPSource", "bind", "listen")
	}

	size := s.cfg.ReceiveBufferBytes
	if size == 0 {
		size = defaultSocketBuffer
	}
	if err := conn.SetReadBuffer(size); err != nil {
		// Some systems cap the buffer size.
		s.logger.Warn("Could not set UDP receive buffer", "buffer_size", size, "error", err)
	}
	return conn, nil
}

func (s *Source) readLoop(ctx context.Context, conn *net.UDPConn, sc engine.SourceContext) error {
	maxLength := s.cfg.maxLength()
	// One spare byte tells a datagram of exactly maxLength from a longer one.
	buf := make([]byte, maxLength+1)

	for {
		if ctx.Err() != nil {
			return nil
		}

		_ = conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			s.metrics.socketError()
			s.logger.Error("UDP read failed", "error", err)
			return errors.WrapTransient(err, "UDPSource", "readLoop", "read datagram")
		}

		now := time.Now()
		s.metrics.datagram(n, now)

		truncated := n > maxLength
		frames := splitFrames(buf[:n], s.cfg.Framing)
		if truncated && len(frames) > 0 {
			s.logger.Warn("Discarding frame larger than max_length",
				"max_length", maxLength, "peer", peer.String())
			s.metrics.discarded("truncated")
			frames = frames[:len(frames)-1]
		}

		batch := make(event.LogArray, 0, len(frames))
		for _, frame := range frames {
			e, err := s.newEvent(frame, peer, now)
			if err != nil {
				s.logger.Warn("Discarding undecodable frame", "error", err, "peer", peer.String())
				s.metrics.discarded("decode")
				continue
			}
			batch = append(batch, e)
		}
		if len(batch) == 0 {
			continue
		}

		if err := s.send(ctx, sc, batch); err != nil {
			// A closed output or a cancelled context ends the source.
			s.logger.Debug("UDP source output closed", "error", err)
			return nil
		}
	}
}

func (s *Source) send(ctx context.Context, sc engine.SourceContext, batch event.LogArray) error {
	if !sc.Acknowledgements {
		return sc.Out.Send(ctx, batch)
	}
	status, err := sc.Out.SendAndWait(ctx, batch)
	if err != nil {
		return err
	}
	if status != event.Delivered {
		s.logger.Debug("Datagram not delivered", "status", status.String(), "events", len(batch))
	}
	return nil
}

// splitFrames copies the frames of one datagram. Empty newline frames
// are skipped.
func splitFrames(data []byte, framing string) [][]byte {
	if framing != FramingNewline {
		if len(data) == 0 {
			return nil
		}
		return [][]byte{bytes.Clone(data)}
	}

	var frames [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 {
			continue
		}
		frames = append(frames, bytes.Clone(line))
	}
	return frames
}

func (s *Source) newEvent(frame []byte, peer *net.UDPAddr, now time.Time) (*event.LogEvent, error) {
	var payload value.Value
	if s.cfg.Decoding == DecodingJSON {
		v, err := value.ParseJSON(frame)
		if err != nil {
			return nil, err
		}
		payload = v
	} else {
		m := value.NewMap()
		m.Set(event.MessageKey, value.Bytes(frame))
		payload = value.FromMap(m)
	}

	e, err := event.NewLog(payload, event.WithIngestTime(now))
	if err != nil {
		return nil, err
	}

	// Fields already present in a decoded payload win.
	if !s.hostPath.IsRoot() {
		insertIfEmpty(e, s.hostPath, value.String(peer.IP.String()))
	}
	if !s.portPath.IsRoot() {
		insertIfEmpty(e, s.portPath, value.Integer(int64(peer.Port)))
	}
	insertIfEmpty(e, sourceTypePath, value.String(SourceType))
	insertIfEmpty(e, timestampPath, value.Timestamp(now))
	return e, nil
}

func insertIfEmpty(e *event.LogEvent, path value.Path, v value.Value) {
	if e.Get(path) != nil {
		return
	}
	// A conflicting parent (e.g. host is a string and the key is host.ip)
	// leaves the payload untouched.
	_, _, _ = e.Insert(path, v)
}

// Register adds the "udp" source type to registry.
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(component.Registration{
		Name:        "udp",
		Kind:        component.KindSource,
		Description: "Reads datagrams from a UDP socket",
		Factory: func(id string, opts component.Options, deps component.Dependencies) (any, error) {
			cfg := DefaultConfig()
			if err := opts.Decode(&cfg); err != nil {
				return nil, err
			}
			return NewSource(cfg, Deps{
				ID:              id,
				Logger:          deps.GetLoggerWithComponent(id),
				MetricsRegistry: deps.MetricsRegistry,
			})
		},
	})
}
