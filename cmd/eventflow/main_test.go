package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventflow/config"
)

const validPipeline = `
sources:
  syslog_in:
    type: udp
    options:
      address: 127.0.0.1:0
transforms:
  errors_only:
    type: filter
    inputs: [syslog_in]
    options:
      rules:
        - {field: level, operator: eq, value: error}
sinks:
  archive:
    type: file
    inputs: [errors_only]
    options:
      path: ${EVENTFLOW_TEST_DIR}/errors.jsonl
    buffer:
      type: jetstream
      stream: ARCHIVE
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("EVENTFLOW_TEST_DIR", dir)
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--version"}, envFrom(nil), &stdout, &bytes.Buffer{}))
	assert.Equal(t, "eventflow version "+Version+"\n", stdout.String())
}

func TestRun_ValidateOnly(t *testing.T) {
	path := writeConfig(t, validPipeline)
	var stdout bytes.Buffer
	err := run(context.Background(), []string{"--validate", "-c", path}, envFrom(nil), &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Configuration is valid")
}

func TestRun_ValidateRejectsBadOptions(t *testing.T) {
	path := writeConfig(t, `
sources:
  in:
    type: udp
    options: {address: "no-port"}
sinks:
  out:
    type: file
    inputs: [in]
    options: {path: /tmp/x.jsonl}
`)
	err := run(context.Background(), []string{"--validate", "-c", path}, envFrom(nil), &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRun_InvalidFlags(t *testing.T) {
	err := run(context.Background(), []string{"--log-level=loud", "-c", writeConfig(t, validPipeline)},
		envFrom(nil), &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestWithoutJetStream(t *testing.T) {
	cfg := &config.Config{Sinks: map[string]config.SinkConfig{
		"a": {Buffer: &config.BufferConfig{Type: config.BufferJetStream, Stream: "A"}},
		"b": {Buffer: &config.BufferConfig{Type: config.BufferMemory, MaxBatches: 3}},
		"c": {},
	}}
	out := withoutJetStream(cfg)
	assert.Equal(t, config.BufferMemory, out.Sinks["a"].Buffer.Type)
	assert.Equal(t, 3, out.Sinks["b"].Buffer.MaxBatches)
	assert.Nil(t, out.Sinks["c"].Buffer)
	assert.Equal(t, config.BufferJetStream, cfg.Sinks["a"].Buffer.Type, "input is not modified")
}

type fakePipeline struct {
	err       error
	untilDone bool
	linger    time.Duration
}

func (f fakePipeline) Run(ctx context.Context) error {
	if f.untilDone {
		<-ctx.Done()
		time.Sleep(f.linger)
	}
	return f.err
}

func TestRunPipeline(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("sources finish", func(t *testing.T) {
		assert.NoError(t, runPipeline(context.Background(), fakePipeline{}, time.Second, logger))
	})

	t.Run("pipeline error", func(t *testing.T) {
		err := runPipeline(context.Background(), fakePipeline{err: errors.New("sink broke")}, time.Second, logger)
		assert.ErrorContains(t, err, "sink broke")
	})

	t.Run("signal then drain", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, runPipeline(ctx, fakePipeline{untilDone: true, linger: 10 * time.Millisecond}, time.Second, logger))
	})

	t.Run("shutdown timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := runPipeline(ctx, fakePipeline{untilDone: true, linger: time.Second}, 20*time.Millisecond, logger)
		assert.ErrorContains(t, err, "graceful shutdown failed")
	})
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "eventflow", line["service"])
	assert.Equal(t, Version, line["version"])

	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
