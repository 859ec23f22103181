package file

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/metric"
	"github.com/c360/eventflow/value"
)

// Encodings.
const (
	EncodingJSON = "json"
	EncodingText = "text"
)

var messagePath = value.MustParsePath(event.MessageKey)

// Config holds configuration for the file sink.
type Config struct {
	Path     string `yaml:"path"`
	Encoding string `yaml:"encoding"`
	// Append keeps existing content; otherwise the file is truncated on
	// start.
	Append bool `yaml:"append"`
	// BufferBytes sizes the write buffer flushed after every batch.
	BufferBytes int `yaml:"buffer_bytes"`
}

// DefaultConfig returns default configuration for the file sink.
func DefaultConfig() Config {
	return Config{Encoding: EncodingJSON, Append: true, BufferBytes: 64 * 1024}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: path is required", errors.ErrMissingConfig),
			"Config", "Validate", "path check")
	}
	if c.Encoding != EncodingJSON && c.Encoding != EncodingText {
		return errors.WrapInvalid(fmt.Errorf("%w: encoding must be json or text", errors.ErrInvalidConfig),
			"Config", "Validate", "encoding check")
	}
	if c.BufferBytes < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: buffer_bytes cannot be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "buffer check")
	}
	return nil
}

// Deps holds the runtime dependencies of a Sink.
type Deps struct {
	ID              string
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Sink writes one line per event. Each batch is flushed before its
// events are finalized, so Delivered means the bytes reached the file.
type Sink struct {
	id      string
	cfg     Config
	logger  *slog.Logger
	metrics *sinkMetrics

	// encode renders one event without the trailing newline.
	encode func(event.Event) ([]byte, error)
	file   *os.File
}

var _ engine.Sink = (*Sink)(nil)

// NewSink validates cfg and builds a sink. The file is opened by Run.
func NewSink(cfg Config, deps Deps) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "FileSink", "New", "config validation")
	}
	id := deps.ID
	if id == "" {
		id = "file"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", id)
	}
	metrics, err := newSinkMetrics(deps.MetricsRegistry, id)
	if err != nil {
		return nil, errors.WrapTransient(err, "FileSink", "New", "metrics registration")
	}

	s := &Sink{id: id, cfg: cfg, logger: logger, metrics: metrics, encode: event.MarshalEventJSON}
	if cfg.Encoding == EncodingText {
		s.encode = encodeText
	}
	return s, nil
}

// Run writes batches until in is closed.
func (s *Sink) Run(_ context.Context, in <-chan event.EventArray) error {
	f, err := s.open()
	if err != nil {
		for batch := range in {
			batch.Finalize(event.Errored)
		}
		return err
	}
	s.file = f
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close output file", "path", s.cfg.Path, "error", err)
		}
	}()

	size := s.cfg.BufferBytes
	if size == 0 {
		size = DefaultConfig().BufferBytes
	}
	w := bufio.NewWriterSize(f, size)

	s.logger.Info("File sink started", "path", s.cfg.Path, "encoding", s.cfg.Encoding, "append", s.cfg.Append)
	for batch := range in {
		s.write(w, batch)
	}
	return nil
}

func (s *Sink) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o755); err != nil {
		return nil, errors.WrapFatal(err, "FileSink", "open", "create output directory")
	}
	flags := os.O_CREATE | os.O_WRONLY
	if s.cfg.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(s.cfg.Path, flags, 0o644)
	if err != nil {
		return nil, errors.WrapFatal(err, "FileSink", "open", "open output file")
	}
	return f, nil
}

// write encodes and flushes one batch. Events that cannot be encoded are
// Rejected; a write or flush failure marks the rest of the batch Errored.
func (s *Sink) write(w *bufio.Writer, batch event.EventArray) {
	var (
		written []event.Event
		n       int
	)
	for _, e := range batch.Events() {
		line, err := s.encode(e)
		if err != nil {
			s.logger.Error("Failed to encode event", "kind", e.Kind().String(), "error", err)
			s.metrics.rejected()
			event.Finalize(e, event.Rejected)
			continue
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			s.fail(w, batch, err)
			return
		}
		n += len(line)
		written = append(written, e)
	}
	if err := w.Flush(); err != nil {
		s.fail(w, batch, err)
		return
	}
	for _, e := range written {
		event.Finalize(e, event.Delivered)
	}
	s.metrics.wrote(len(written), n)
}

func (s *Sink) fail(w *bufio.Writer, batch event.EventArray, err error) {
	s.logger.Error("Failed to write batch", "path", s.cfg.Path, "events", batch.Len(), "error", err)
	s.metrics.writeError()
	// A failed bufio.Writer stays failed; drop what it holds and retry the
	// file with the next batch.
	w.Reset(s.file)
	batch.Finalize(event.Errored)
}

// encodeText writes the message field verbatim and falls back to JSON for
// events without one.
func encodeText(e event.Event) ([]byte, error) {
	var msg *value.Value
	switch ev := e.(type) {
	case *event.LogEvent:
		msg = ev.Get(messagePath)
	case *event.TraceEvent:
		msg = ev.Get(messagePath)
	}
	if msg != nil {
		if b, ok := msg.AsBytes(); ok {
			return append([]byte(nil), b...), nil
		}
	}
	return event.MarshalEventJSON(e)
}

// Register adds the "file" sink type to registry.
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(component.Registration{
		Name:        "file",
		Kind:        component.KindSink,
		Description: "Writes events to a file as JSON lines or raw messages",
		Factory: func(id string, opts component.Options, deps component.Dependencies) (any, error) {
			cfg := DefaultConfig()
			if err := opts.Decode(&cfg); err != nil {
				return nil, err
			}
			return NewSink(cfg, Deps{
				ID:              id,
				Logger:          deps.GetLoggerWithComponent(id),
				MetricsRegistry: deps.MetricsRegistry,
			})
		},
	})
}
