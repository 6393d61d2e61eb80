package simulator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/pkg/metrics"
)

// SchedulerConfig holds the configuration for periodic snapshot runs.
type SchedulerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Simulator executes each run
	Simulator *Simulator
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.SimulatorMetrics
	// OnRun, when set, is called after every run
	OnRun func(*Report, error)
	// Filter narrows the endpoints of every run
	Filter store.Filter
	// Interval is the time between snapshot runs
	Interval time.Duration
	// Immediate starts the first run without waiting for the first interval
	Immediate bool
}

// Scheduler takes a snapshot of the network at a fixed interval.
type Scheduler struct {
	logger    *slog.Logger
	simulator *Simulator
	metrics   *metrics.SimulatorMetrics
	onRun     func(*Report, error)
	filter    store.Filter
	interval  time.Duration
	immediate bool
}

var (
	errInvalidInterval   = errors.New("interval must be greater than 0")
	errSimulatorRequired = errors.New("simulator is required")
)

// NewScheduler creates a scheduler with the given configuration.
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	if cfg.Simulator == nil {
		return nil, errSimulatorRequired
	}

	return &Scheduler{
		logger:    cfg.Logger,
		simulator: cfg.Simulator,
		metrics:   cfg.Metrics,
		onRun:     cfg.OnRun,
		filter:    cfg.Filter,
		interval:  cfg.Interval,
		immediate: cfg.Immediate,
	}, nil
}

// Run takes snapshots until ctx is canceled or a shutdown signal arrives. Runs
// never overlap; ticks missed while a run is in progress are dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		"interval", s.interval,
		"scope", s.filter.Scope(),
	)

	if s.immediate {
		s.runOnce(ctx)
	}

	for {
		select {
		case sig := <-sigChan:
			s.logger.Info("received shutdown signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	report, err := s.simulator.RunSnapshot(ctx, s.filter)

	status := "success"
	switch {
	case err != nil && ctx.Err() != nil:
		status = "canceled"
	case err != nil:
		status = "error"
		// Keep scheduling; the next tick may succeed.
		s.logger.Error("scheduled snapshot failed", "error", err)
	case report.Failed > 0:
		status = "partial"
	}

	if s.metrics != nil {
		s.metrics.ScheduledRuns.WithLabelValues(status).Inc()
	}

	if s.onRun != nil {
		s.onRun(report, err)
	}
}
