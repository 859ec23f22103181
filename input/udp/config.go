package udp

import (
	"fmt"
	"net"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/value"
)

// Framing values.
const (
	FramingBytes   = "bytes"
	FramingNewline = "newline_delimited"
)

// Decoding values.
const (
	DecodingBytes = "bytes"
	DecodingJSON  = "json"
)

// Config configures a UDP source.
type Config struct {
	// Address is the host:port to bind, e.g. "0.0.0.0:9000".
	Address string `yaml:"address"`
	// MaxLength is the largest datagram accepted; longer ones are
	// truncated and their last frame discarded.
	MaxLength int `yaml:"max_length"`
	// HostKey and PortKey name the fields receiving the peer address.
	// An empty key leaves that field out.
	HostKey string `yaml:"host_key"`
	PortKey string `yaml:"port_key"`
	// ReceiveBufferBytes sets SO_RCVBUF. When set it also caps MaxLength.
	ReceiveBufferBytes int `yaml:"receive_buffer_bytes"`
	// Framing splits a datagram into events.
	Framing string `yaml:"framing"`
	// Decoding turns a frame into a payload: raw bytes under "message",
	// or a JSON object.
	Decoding string `yaml:"decoding"`
}

// DefaultConfig returns the defaults; Address must still be set.
func DefaultConfig() Config {
	return Config{
		MaxLength: 102400,
		HostKey:   "host",
		PortKey:   "port",
		Framing:   FramingBytes,
		Decoding:  DecodingBytes,
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "address check")
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: address %q: %v", errors.ErrInvalidConfig, c.Address, err),
			"Config", "Validate", "address check")
	}
	if c.MaxLength <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: max_length must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "max_length check")
	}
	if c.ReceiveBufferBytes < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: receive_buffer_bytes must not be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "receive_buffer_bytes check")
	}
	switch c.Framing {
	case FramingBytes, FramingNewline:
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: framing %q", errors.ErrInvalidConfig, c.Framing),
			"Config", "Validate", "framing check")
	}
	switch c.Decoding {
	case DecodingBytes, DecodingJSON:
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: decoding %q", errors.ErrInvalidConfig, c.Decoding),
			"Config", "Validate", "decoding check")
	}
	for _, key := range []string{c.HostKey, c.PortKey} {
		path, err := value.ParsePath(key)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "key path check")
		}
		if path.HasWildcard() {
			return errors.WrapInvalid(fmt.Errorf("%w: key %q has a wildcard", errors.ErrInvalidConfig, key),
				"Config", "Validate", "key path check")
		}
	}
	return nil
}

// maxLength is the effective datagram limit.
func (c *Config) maxLength() int {
	if c.ReceiveBufferBytes > 0 && c.ReceiveBufferBytes < c.MaxLength {
		return c.ReceiveBufferBytes
	}
	return c.MaxLength
}
