// Package logger builds the JSON slog loggers of the gridloss commands and the
// scoped child loggers the simulator hands to each run and tick.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ServiceName is the service attribute of every record unless Config says
// otherwise.
const ServiceName = "gridloss"

// Config controls where records go and which are kept.
type Config struct {
	// Output receives the JSON records; nil means os.Stdout
	Output io.Writer
	// Service is attached to every record as "service"; empty omits it
	Service string
	// Level drops records below it
	Level slog.Level
	// AddSource records the file and line of the call
	AddSource bool
}

// DefaultConfig logs gridloss records at info to stdout.
func DefaultConfig() *Config {
	return &Config{
		Output:  os.Stdout,
		Service: ServiceName,
		Level:   slog.LevelInfo,
	}
}

// New builds a JSON logger from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	log := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}))
	if cfg.Service != "" {
		log = log.With(slog.String("service", cfg.Service))
	}
	return log
}

// NewWithLevel is DefaultConfig at the given level.
func NewWithLevel(level slog.Level) *slog.Logger {
	cfg := DefaultConfig()
	cfg.Level = level
	return New(cfg)
}

// ParseLevel reads a log.level setting. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent tags records with the part of gridloss that wrote them, such
// as "simulator", "scheduler" or "mq-client".
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithRun returns a logger scoped to one simulation run.
func WithRun(logger *slog.Logger, runID, mode string) *slog.Logger {
	return logger.With(
		slog.String("run_id", runID),
		slog.String("mode", mode),
	)
}

// WithTick returns a logger scoped to one endpoint reading. The timestamp is
// logged in UTC, as stored.
func WithTick(logger *slog.Logger, consumerID string, ts time.Time) *slog.Logger {
	return logger.With(
		slog.String("consumer_id", consumerID),
		slog.Time("timestamp", ts.UTC()),
	)
}
