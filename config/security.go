package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360/eventflow/errors"
)

const (
	maxConfigSize = 10 << 20 // 10MB max config file size
	maxEnvVarLen  = 10000    // Maximum expanded environment variable length
	maxPathLen    = 4096     // Maximum file path length
)

// validateConfigPath does basic path validation.
func validateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty config path", errors.ErrMissingConfig)
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("%w: path too long: %d > %d", errors.ErrInvalidConfig, len(path), maxPathLen)
	}

	// Reject paths that still climb after cleaning, e.g. "a/../../etc".
	if strings.HasPrefix(filepath.ToSlash(filepath.Clean(path)), "../") {
		return fmt.Errorf("%w: path traversal not allowed: %s", errors.ErrInvalidConfig, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return fmt.Errorf("%w: only YAML or JSON config files allowed: %s", errors.ErrInvalidConfig, path)
	}
	return nil
}

// safeReadFile reads a config file with size and type checks.
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes > %d", errors.ErrInvalidConfig, info.Size(), maxConfigSize)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", errors.ErrInvalidConfig, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	return data, nil
}

// expandEnv replaces ${VAR} and $VAR with environment values. Unset
// variables expand to the empty string; "$$" is a literal dollar.
func expandEnv(data []byte) ([]byte, error) {
	var tooLong string
	const dollar = "\x00dollar\x00"
	text := strings.ReplaceAll(string(data), "$$", dollar)
	text = os.Expand(text, func(name string) string {
		v := os.Getenv(name)
		if len(v) > maxEnvVarLen {
			tooLong = name
			return ""
		}
		return v
	})
	if tooLong != "" {
		return nil, fmt.Errorf("%w: environment variable %s exceeds %d bytes", errors.ErrInvalidConfig, tooLong, maxEnvVarLen)
	}
	return []byte(strings.ReplaceAll(text, dollar, "$")), nil
}
