package httpmetrics

import (
	"fmt"
	"net/url"
	"time"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/pkg/retry"
)

// TokenKey is the metadata field that routes a metric to a token's
// partition.
const TokenKey = "token"

// BatchConfig bounds one request.
type BatchConfig struct {
	MaxEvents int           `yaml:"max_events"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RetryConfig controls redelivery of a failed request.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// Config holds configuration for the HTTP metrics sink.
type Config struct {
	Endpoint string `yaml:"endpoint"`
	// Token is used for metrics whose metadata carries no token.
	Token            string            `yaml:"token"`
	DefaultNamespace string            `yaml:"default_namespace"`
	HostKey          string            `yaml:"host_key"`
	Index            string            `yaml:"index"`
	Source           string            `yaml:"source"`
	SourceType       string            `yaml:"sourcetype"`
	Headers          map[string]string `yaml:"headers"`
	RequestTimeout   time.Duration     `yaml:"request_timeout"`
	Workers          int               `yaml:"workers"`
	Batch            BatchConfig       `yaml:"batch"`
	Retry            RetryConfig       `yaml:"retry"`
}

// DefaultConfig returns default configuration for the sink.
func DefaultConfig() Config {
	return Config{
		HostKey:        "host",
		RequestTimeout: 30 * time.Second,
		Workers:        4,
		Batch:          BatchConfig{MaxEvents: 1000, Timeout: time.Second},
		Retry:          RetryConfig{MaxAttempts: 3, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 5 * time.Second},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return invalid(fmt.Errorf("%w: endpoint is required", errors.ErrMissingConfig), "endpoint check")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(fmt.Errorf("%w: endpoint %q must be an http(s) URL", errors.ErrInvalidConfig, c.Endpoint),
			"endpoint check")
	}
	switch {
	case c.Batch.MaxEvents <= 0:
		return invalid(fmt.Errorf("%w: batch.max_events must be positive", errors.ErrInvalidConfig), "batch check")
	case c.Batch.Timeout <= 0:
		return invalid(fmt.Errorf("%w: batch.timeout must be positive", errors.ErrInvalidConfig), "batch check")
	case c.RequestTimeout <= 0:
		return invalid(fmt.Errorf("%w: request_timeout must be positive", errors.ErrInvalidConfig), "timeout check")
	case c.Workers <= 0:
		return invalid(fmt.Errorf("%w: workers must be positive", errors.ErrInvalidConfig), "workers check")
	case c.Retry.MaxAttempts < 0 || c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < 0:
		return invalid(fmt.Errorf("%w: retry settings cannot be negative", errors.ErrInvalidConfig), "retry check")
	}
	return nil
}

func (c *Config) retryConfig() retry.Config {
	rc := retry.DefaultConfig()
	if c.Retry.MaxAttempts > 0 {
		rc.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.InitialBackoff > 0 {
		rc.InitialDelay = c.Retry.InitialBackoff
	}
	if c.Retry.MaxBackoff > 0 {
		rc.MaxDelay = c.Retry.MaxBackoff
	}
	return rc
}

func invalid(err error, action string) error {
	return errors.WrapInvalid(err, "Config", "Validate", action)
}
