// Package logger owns the process-wide zerolog logger. Packages take child
// loggers tagged with their component, and a folder run or HTTP request adds
// its own id on top.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string // trace, debug, info, warn, error
	Format     string // json or console
	TimeFormat string // layout for timestamps
	Output     string // stdout, stderr or a file path
}

// DefaultConfig is used until the command has loaded its configuration.
func DefaultConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
		Output:     "stderr",
	}
}

// Setup replaces the global logger according to config.
func Setup(config LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}

	sink, err := sinkFor(config)
	if err != nil {
		return err
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(sink).With().Timestamp().Logger()
	return nil
}

// sinkFor opens the configured destination and wraps it for console output.
func sinkFor(config LogConfig) (io.Writer, error) {
	var out io.Writer
	switch config.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	}

	if strings.EqualFold(config.Format, "json") {
		return out, nil
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: config.TimeFormat}, nil
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// WithRunID tags l with a pipeline run id.
func WithRunID(l zerolog.Logger, runID string) zerolog.Logger {
	return l.With().Str("run_id", runID).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return log.Logger.With().Str("request_id", requestID).Logger()
}
