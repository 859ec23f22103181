package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/eventflow/buffer"
	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
)

// Buffer types.
const (
	BufferMemory    = "memory"
	BufferJetStream = "jetstream"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EVENTFLOW"

// Config describes one pipeline.
type Config struct {
	Version    string                     `yaml:"version,omitempty"`
	Engine     engine.Config              `yaml:"engine"`
	NATS       NATSConfig                 `yaml:"nats,omitempty"`
	Sources    map[string]SourceConfig    `yaml:"sources"`
	Transforms map[string]ComponentConfig `yaml:"transforms,omitempty"`
	Sinks      map[string]SinkConfig      `yaml:"sinks"`
}

// ComponentConfig is the part every component entry shares.
type ComponentConfig struct {
	Type    string            `yaml:"type"`
	Inputs  []string          `yaml:"inputs,omitempty"`
	Options component.Options `yaml:"options,omitempty"`
}

// SourceConfig configures a source.
type SourceConfig struct {
	ComponentConfig `yaml:",inline"`
	// Acknowledgements makes the source wait for delivery outcomes.
	Acknowledgements bool `yaml:"acknowledgements,omitempty"`
}

// SinkConfig configures a sink and the buffer in front of it.
type SinkConfig struct {
	ComponentConfig `yaml:",inline"`
	Buffer          *BufferConfig `yaml:"buffer,omitempty"`
}

// BufferConfig selects the buffer in front of a sink.
type BufferConfig struct {
	Type string `yaml:"type"`
	// MaxBatches bounds a memory buffer.
	MaxBatches int `yaml:"max_batches,omitempty"`
	// WhenFull is block, drop_oldest or drop_newest.
	WhenFull string `yaml:"when_full,omitempty"`
	// Stream names the JetStream stream; subject and consumer derive from
	// it when empty.
	Stream   string        `yaml:"stream,omitempty"`
	Subject  string        `yaml:"subject,omitempty"`
	Consumer string        `yaml:"consumer,omitempty"`
	MaxAge   time.Duration `yaml:"max_age,omitempty"`
}

// NATSConfig defines the connection used by JetStream buffers.
type NATSConfig struct {
	URLs          []string      `yaml:"urls,omitempty"`
	MaxReconnects int           `yaml:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `yaml:"reconnect_wait,omitempty"`
	Username      string        `yaml:"username,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	Token         string        `yaml:"token,omitempty"`
}

// Default returns a configuration with engine and NATS defaults and no
// components.
func Default() *Config {
	return &Config{
		Engine: engine.DefaultConfig(),
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
	}
}

// UsesJetStream reports whether any sink is buffered by JetStream.
func (c *Config) UsesJetStream() bool {
	for _, s := range c.Sinks {
		if s.Buffer != nil && s.Buffer.Type == BufferJetStream {
			return true
		}
	}
	return false
}

// Validate checks ids, types, references and buffers. It does not check
// component options; the factories do that when the pipeline is built.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return invalid("at least one source is required")
	}
	if len(c.Sinks) == 0 {
		return invalid("at least one sink is required")
	}
	if c.Engine.ChannelCapacity < 0 {
		return invalid("engine.channel_capacity cannot be negative")
	}
	if c.Engine.DrainTimeout < 0 {
		return invalid("engine.drain_timeout cannot be negative")
	}

	kinds := make(map[string]string)
	claim := func(kind, id string, cc ComponentConfig) error {
		if err := component.ValidateID(id); err != nil {
			return errors.Wrap(err, "Config", "Validate", fmt.Sprintf("%s id", kind))
		}
		if other, ok := kinds[id]; ok {
			return invalid(fmt.Sprintf("id %q is used by a %s and a %s", id, other, kind))
		}
		kinds[id] = kind
		if cc.Type == "" {
			return invalid(fmt.Sprintf("%s %s: type is required", kind, id))
		}
		return nil
	}
	for _, id := range sortedKeys(c.Sources) {
		src := c.Sources[id]
		if err := claim("source", id, src.ComponentConfig); err != nil {
			return err
		}
		if len(src.Inputs) > 0 {
			return invalid(fmt.Sprintf("source %s cannot have inputs", id))
		}
	}
	for _, id := range sortedKeys(c.Transforms) {
		if err := claim("transform", id, c.Transforms[id]); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(c.Sinks) {
		if err := claim("sink", id, c.Sinks[id].ComponentConfig); err != nil {
			return err
		}
	}

	check := func(kind, id string, inputs []string) error {
		if len(inputs) == 0 {
			return invalid(fmt.Sprintf("%s %s: inputs are required", kind, id))
		}
		for _, in := range inputs {
			switch kinds[in] {
			case "source", "transform":
			case "sink":
				return invalid(fmt.Sprintf("%s %s: input %q is a sink", kind, id, in))
			default:
				return invalid(fmt.Sprintf("%s %s: unknown input %q", kind, id, in))
			}
		}
		return nil
	}
	for _, id := range sortedKeys(c.Transforms) {
		if err := check("transform", id, c.Transforms[id].Inputs); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(c.Sinks) {
		sink := c.Sinks[id]
		if err := check("sink", id, sink.Inputs); err != nil {
			return err
		}
		if sink.Buffer != nil {
			if err := sink.Buffer.validate(); err != nil {
				return errors.Wrap(err, "Config", "Validate", fmt.Sprintf("sink %s buffer", id))
			}
		}
	}
	if c.UsesJetStream() && len(c.NATS.URLs) == 0 {
		return invalid("nats.urls is required by jetstream buffers")
	}
	return nil
}

func (b *BufferConfig) validate() error {
	switch b.Type {
	case BufferMemory:
		if b.MaxBatches < 0 {
			return invalid("max_batches cannot be negative")
		}
		if _, err := buffer.ParseOverflowPolicy(b.WhenFull); err != nil {
			return err
		}
	case BufferJetStream:
		if b.Stream == "" {
			return invalid("stream is required for a jetstream buffer")
		}
		if b.WhenFull != "" && b.WhenFull != "block" {
			return invalid("a jetstream buffer only supports when_full: block")
		}
	default:
		return invalid(fmt.Sprintf("unknown buffer type %q", b.Type))
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "Config", "Validate", "check")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Loader reads configuration files.
type Loader struct {
	envPrefix  string
	validation bool
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader that validates and applies EVENTFLOW_*
// overrides.
func NewLoader() *Loader {
	return &Loader{envPrefix: EnvPrefix, validation: true, lookupEnv: os.LookupEnv}
}

// EnableValidation enables or disables validation after loading.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile reads, expands and decodes the file at path.
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadFile", fmt.Sprintf("read %s", path))
	}
	return l.Load(bytes.NewReader(data))
}

// Load decodes a YAML document over the defaults. Unknown keys are
// errors.
func (l *Loader) Load(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxConfigSize+1))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "read config")
	}
	if len(raw) > maxConfigSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: config larger than %d bytes", errors.ErrInvalidConfig, maxConfigSize),
			"Loader", "Load", "read config")
	}
	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "expand environment")
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "Loader", "Load", "decode yaml")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	env := func(name string) (string, bool) {
		v, ok := l.lookupEnv(l.envPrefix + "_" + name)
		return v, ok && v != ""
	}
	bad := func(name string, err error) error {
		return errors.WrapInvalid(fmt.Errorf("%w: %s_%s: %w", errors.ErrInvalidConfig, l.envPrefix, name, err),
			"Loader", "applyEnvOverrides", "parse override")
	}

	if v, ok := env("CHANNEL_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return bad("CHANNEL_CAPACITY", err)
		}
		cfg.Engine.ChannelCapacity = n
	}
	if v, ok := env("DRAIN_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return bad("DRAIN_TIMEOUT", err)
		}
		cfg.Engine.DrainTimeout = d
	}
	if v, ok := env("NATS_URLS"); ok {
		cfg.NATS.URLs = strings.Split(v, ",")
	}
	if v, ok := env("NATS_USERNAME"); ok {
		cfg.NATS.Username = v
	}
	if v, ok := env("NATS_PASSWORD"); ok {
		cfg.NATS.Password = v
	}
	if v, ok := env("NATS_TOKEN"); ok {
		cfg.NATS.Token = v
	}
	return nil
}

// String renders the config as YAML with secrets masked.
func (c *Config) String() string {
	masked := *c
	masked.NATS.Password = mask(masked.NATS.Password)
	masked.NATS.Token = mask(masked.NATS.Token)
	out, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
