package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	MetricsAddr     string
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

// parseFlags parses args, falling back to EVENTFLOW_* variables for
// anything not given on the command line.
func parseFlags(args []string, getenv func(string) string, stderr io.Writer) (*CLIConfig, error) {
	env := envReader{getenv: getenv}
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	configDefault := env.str("EVENTFLOW_CONFIG", "eventflow.yaml")
	fs.StringVar(&cfg.ConfigPath, "config", configDefault,
		"Path to pipeline configuration file (env: EVENTFLOW_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", configDefault,
		"Path to pipeline configuration file (env: EVENTFLOW_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		env.str("EVENTFLOW_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: EVENTFLOW_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		env.str("EVENTFLOW_LOG_FORMAT", "json"),
		"Log format: json, text (env: EVENTFLOW_LOG_FORMAT)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		env.duration("EVENTFLOW_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: EVENTFLOW_SHUTDOWN_TIMEOUT)")

	fs.StringVar(&cfg.MetricsAddr, "metrics-addr",
		env.str("EVENTFLOW_METRICS_ADDR", ""),
		"Prometheus listen address, empty to disable (env: EVENTFLOW_METRICS_ADDR)")

	fs.BoolVar(&cfg.Validate, "validate",
		env.boolean("EVENTFLOW_VALIDATE", false),
		"Validate configuration and exit")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	fs.Usage = func() { printDetailedHelp(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ShowHelp {
		fs.Usage()
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - observability event pipeline

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Run a pipeline
  %[1]s --config=/etc/eventflow/pipeline.yaml

  # Debug logging with a metrics endpoint
  %[1]s --log-level=debug --log-format=text --metrics-addr=:9598

  # Validate configuration only
  %[1]s --validate -c pipeline.yaml

Version: %[2]s
Build: %[3]s
`, appName, Version, BuildTime)
}

// envReader reads typed values, ignoring ones that do not parse.
type envReader struct {
	getenv func(string) string
}

func (e envReader) str(key, defaultValue string) string {
	if value := e.getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e envReader) boolean(key string, defaultValue bool) bool {
	if value := e.getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (e envReader) duration(key string, defaultValue time.Duration) time.Duration {
	if value := e.getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
