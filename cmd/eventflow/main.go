// Package main implements the eventflow command, which loads a pipeline
// configuration and runs it until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/componentregistry"
	"github.com/c360/eventflow/config"
	"github.com/c360/eventflow/health"
	"github.com/c360/eventflow/metric"
	"github.com/c360/eventflow/natsclient"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "eventflow"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		stop()
		os.Exit(1)
	}
}

// run is main without process globals. The pipeline runs until ctx is
// cancelled or every source finishes.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	cliCfg, err := parseFlags(args, getenv, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		return nil
	}

	logger := setupLogger(stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("Starting eventflow",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := config.NewLoader().LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry, err := setupRegistry()
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		// Building creates every component, so option errors surface too.
		if _, err := config.Build(ctx, withoutJetStream(cfg), config.BuildDeps{Registry: registry, Logger: logger}); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger.Info("Configuration is valid",
			"sources", len(cfg.Sources), "transforms", len(cfg.Transforms), "sinks", len(cfg.Sinks))
		return nil
	}
	logger.Debug("Loaded configuration", "config", cfg.String())

	metricsRegistry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()
	if cliCfg.MetricsAddr != "" {
		server := metric.NewServer(cliCfg.MetricsAddr, "/metrics", metricsRegistry,
			metric.WithHealthHandler(monitor.Handler(appName)))
		if err := server.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		logger.Info("Serving metrics", "address", server.Address())
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(stopCtx)
		}()
	}

	var js jetstream.JetStream
	if cfg.UsesJetStream() {
		client, err := connectNATS(ctx, cfg.NATS, metricsRegistry, monitor, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warn("NATS close failed", "error", err)
			}
		}()
		if js, err = client.JetStream(); err != nil {
			return err
		}
	}

	pipeline, err := config.Build(ctx, cfg, config.BuildDeps{
		Registry:        registry,
		Logger:          logger,
		MetricsRegistry: metricsRegistry,
		Health:          monitor,
		JetStream:       js,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	return runPipeline(ctx, pipeline, cliCfg.ShutdownTimeout, logger)
}

// pipelineRunner is the part of engine.Pipeline the command drives.
type pipelineRunner interface {
	Run(ctx context.Context) error
}

// runPipeline runs p until ctx is done. Shutdown is bounded by timeout on
// top of the pipeline's own drain timeout.
func runPipeline(ctx context.Context, p pipelineRunner, timeout time.Duration, logger *slog.Logger) error {
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	logger.Info("eventflow started")
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("pipeline failed: %w", err)
		}
		logger.Info("All sources finished, pipeline stopped")
		return nil
	case <-ctx.Done():
	}

	logger.Info("Received shutdown signal", "timeout", timeout)
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("pipeline shutdown: %w", err)
		}
	case <-time.After(timeout):
		return fmt.Errorf("graceful shutdown failed: pipeline still running after %s", timeout)
	}
	logger.Info("eventflow shutdown complete")
	return nil
}

func setupRegistry() (*component.Registry, error) {
	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return nil, fmt.Errorf("register components: %w", err)
	}
	for _, kind := range []component.Kind{component.KindSource, component.KindTransform, component.KindSink} {
		names := make([]string, 0)
		for _, reg := range registry.List(kind) {
			names = append(names, reg.Name)
		}
		slog.Debug("Component factories registered", "kind", kind, "types", names)
	}
	return registry, nil
}

func connectNATS(
	ctx context.Context,
	nc config.NATSConfig,
	metricsRegistry *metric.MetricsRegistry,
	monitor *health.Monitor,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	client, err := natsclient.NewClient(nc.URLs,
		natsclient.WithMaxReconnects(nc.MaxReconnects),
		natsclient.WithReconnectWait(nc.ReconnectWait),
		natsclient.WithCredentials(nc.Username, nc.Password),
		natsclient.WithToken(nc.Token),
		natsclient.WithName(appName),
		natsclient.WithLogger(logger.With("component", "nats")),
		natsclient.WithMetrics(metricsRegistry),
		natsclient.WithDisconnectCallback(func(err error) {
			monitor.UpdateDegraded("nats", "reconnecting: "+health.Sanitize(fmt.Sprint(err)))
		}),
		natsclient.WithReconnectCallback(func() {
			monitor.UpdateHealthy("nats", "connected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Connect(connCtx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	monitor.UpdateHealthy("nats", "connected")
	return client, nil
}

// withoutJetStream returns a copy of cfg whose jetstream buffers are
// replaced by memory buffers, so validation does not need a server.
func withoutJetStream(cfg *config.Config) *config.Config {
	out := *cfg
	out.Sinks = make(map[string]config.SinkConfig, len(cfg.Sinks))
	for id, sink := range cfg.Sinks {
		if sink.Buffer != nil && sink.Buffer.Type == config.BufferJetStream {
			sink.Buffer = &config.BufferConfig{Type: config.BufferMemory}
		}
		out.Sinks[id] = sink
	}
	return &out
}
