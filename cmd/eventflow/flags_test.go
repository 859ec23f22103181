package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil, envFrom(nil), &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "eventflow.yaml", cfg.ConfigPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.MetricsAddr)
	assert.False(t, cfg.Validate)
}

func TestParseFlags_EnvironmentAndOverrides(t *testing.T) {
	env := envFrom(map[string]string{
		"EVENTFLOW_CONFIG":           "/etc/eventflow/env.yaml",
		"EVENTFLOW_LOG_LEVEL":        "debug",
		"EVENTFLOW_SHUTDOWN_TIMEOUT": "not-a-duration",
		"EVENTFLOW_METRICS_ADDR":     ":9598",
		"EVENTFLOW_VALIDATE":         "true",
	})

	cfg, err := parseFlags(nil, env, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "/etc/eventflow/env.yaml", cfg.ConfigPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout, "unparsable values fall back to the default")
	assert.Equal(t, ":9598", cfg.MetricsAddr)
	assert.True(t, cfg.Validate)

	cfg, err = parseFlags([]string{"-c", "flag.yaml", "--log-level=warn", "--shutdown-timeout=5s"}, env, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "flag.yaml", cfg.ConfigPath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestParseFlags_Help(t *testing.T) {
	var stderr bytes.Buffer
	cfg, err := parseFlags([]string{"--help"}, envFrom(nil), &stderr)
	require.NoError(t, err)
	assert.True(t, cfg.ShowHelp)
	assert.Contains(t, stderr.String(), "--validate -c pipeline.yaml")
	assert.Contains(t, stderr.String(), "EVENTFLOW_CONFIG")

	_, err = parseFlags([]string{"--no-such-flag"}, envFrom(nil), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources: {}\n"), 0o600))

	valid := func() *CLIConfig {
		return &CLIConfig{ConfigPath: path, LogLevel: "info", LogFormat: "text", ShutdownTimeout: time.Second}
	}

	tests := []struct {
		name    string
		mutate  func(*CLIConfig)
		wantErr string
	}{
		{"valid", func(*CLIConfig) {}, ""},
		{"missing config", func(c *CLIConfig) { c.ConfigPath = path + ".missing" }, "config file not found"},
		{"bad level", func(c *CLIConfig) { c.LogLevel = "trace" }, "invalid log level"},
		{"bad format", func(c *CLIConfig) { c.LogFormat = "xml" }, "invalid log format"},
		{"zero timeout", func(c *CLIConfig) { c.ShutdownTimeout = 0 }, "invalid shutdown timeout"},
		{"version skips checks", func(c *CLIConfig) { c.ConfigPath, c.ShowVersion = "", true }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateFlags(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
