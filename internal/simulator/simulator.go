// Package simulator drives the loss pipeline over the network topology: it
// picks a scenario, synthesizes a reading, persists it and raises alerts,
// once per endpoint and timestamp.
package simulator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"procodus.dev/gridloss/internal/grid"
	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/pkg/events"
	"procodus.dev/gridloss/pkg/logger"
	"procodus.dev/gridloss/pkg/metrics"
)

// Run modes.
const (
	ModeSnapshot   = "snapshot"
	ModeHistorical = "historical"
)

const (
	defaultWorkers = 4
	publishTimeout = 5 * time.Second
)

var (
	errLoggerRequired = errors.New("logger is required")
	errStoreRequired  = errors.New("store is required")

	// ErrInvalidHours is returned for a negative historical window.
	ErrInvalidHours = errors.New("hours cannot be negative")
	// ErrMissingTransformer rejects a tick whose endpoint has no transformer loaded.
	ErrMissingTransformer = errors.New("endpoint has no transformer")
)

// Store is the persistence the simulator reads topology from and writes
// readings to.
type Store interface {
	EligibleEndpoints(ctx context.Context, f store.Filter) ([]store.Endpoint, error)
	SiblingCounts(ctx context.Context, transformerIDs []uint) (map[uint]int, error)
	RecordReading(ctx context.Context, reading *store.Reading, build store.AlertBuilder) (*store.RecordResult, error)
}

// Publisher receives an event for every alert raised.
type Publisher interface {
	Publish(ctx context.Context, ev events.AlertEvent) error
}

// Config holds the configuration for a Simulator.
type Config struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Store supplies endpoints and persists readings
	Store Store
	// Publisher is the optional alert event sink
	Publisher Publisher
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.SimulatorMetrics
	// Now returns the current time; defaults to time.Now
	Now func() time.Time
	// Params holds the scenario table, thresholds and tariff
	Params grid.Params
	// Seed makes runs reproducible; zero draws a new seed per run
	Seed uint64
	// Workers bounds the number of concurrent ticks
	Workers int
}

// Simulator runs snapshot and historical batches.
type Simulator struct {
	logger    *slog.Logger
	store     Store
	publisher Publisher
	metrics   *metrics.SimulatorMetrics
	renderer  *grid.Renderer
	now       func() time.Time
	params    grid.Params
	seed      uint64
	workers   int
}

// New validates cfg and creates a Simulator.
func New(cfg *Config) (*Simulator, error) {
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	if cfg.Store == nil {
		return nil, errStoreRequired
	}

	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation parameters: %w", err)
	}

	renderer, err := grid.NewRenderer()
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Simulator{
		logger:    cfg.Logger,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		renderer:  renderer,
		now:       now,
		params:    cfg.Params,
		seed:      cfg.Seed,
		workers:   workers,
	}, nil
}

// TickResult is the outcome of one persisted reading.
type TickResult struct {
	Timestamp      time.Time
	ConsumerID     string
	Scenario       grid.Scenario
	ExpectedStatus grid.Status
	Status         grid.Status
	ReadingID      uint
	AlertID        uint
	IsAnomaly      bool
}

// TickError records a tick that produced no reading.
type TickError struct {
	Timestamp  time.Time
	Err        error
	ConsumerID string
}

func (e TickError) Error() string {
	return fmt.Sprintf("%s at %s: %v", e.ConsumerID, e.Timestamp.Format(time.RFC3339), e.Err)
}

func (e TickError) Unwrap() error {
	return e.Err
}

// Report summarises a run. Results and Errors are ordered by timestamp, then
// consumer id.
type Report struct {
	StartedAt     time.Time
	RunID         string
	Mode          string
	Results       []TickResult
	Errors        []TickError
	Duration      time.Duration
	Seed          uint64
	Endpoints     int
	Hours         int
	Readings      int
	Anomalies     int
	Alerts        int
	AlertFailures int
	Failed        int
	Canceled      bool
}

// RunSnapshot takes one reading for every eligible endpoint under f at the
// current time.
func (s *Simulator) RunSnapshot(ctx context.Context, f store.Filter) (*Report, error) {
	endpoints, err := s.store.EligibleEndpoints(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve endpoints for %s: %w", f.Scope(), err)
	}

	now := s.now().UTC().Truncate(time.Second)
	return s.run(ctx, ModeSnapshot, endpoints, []time.Time{now})
}

// RunHistorical backfills hours of hourly readings for endpoints. Hour h of H
// is stamped now-(H-h) hours, so the newest reading is one hour old.
func (s *Simulator) RunHistorical(ctx context.Context, hours int, endpoints []store.Endpoint) (*Report, error) {
	if hours < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHours, hours)
	}

	now := s.now().UTC().Truncate(time.Second)
	stamps := make([]time.Time, hours)
	for h := range hours {
		stamps[h] = now.Add(-time.Duration(hours-h) * time.Hour)
	}

	return s.run(ctx, ModeHistorical, endpoints, stamps)
}

// RunHistoricalFor resolves the eligible endpoints under f and backfills them.
func (s *Simulator) RunHistoricalFor(ctx context.Context, hours int, f store.Filter) (*Report, error) {
	if hours < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHours, hours)
	}

	endpoints, err := s.store.EligibleEndpoints(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve endpoints for %s: %w", f.Scope(), err)
	}

	return s.RunHistorical(ctx, hours, endpoints)
}

// run ticks every endpoint at every stamp. Stamps are processed in order; the
// ticks of one stamp fan out over the worker pool. Cancellation is checked
// before each tick is scheduled and a started tick always finishes its writes.
func (s *Simulator) run(ctx context.Context, mode string, endpoints []store.Endpoint, stamps []time.Time) (*Report, error) {
	seed := s.seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Mode:      mode,
		Seed:      seed,
		StartedAt: s.now().UTC(),
		Endpoints: len(endpoints),
		Hours:     len(stamps),
	}
	log := logger.WithRun(s.logger, report.RunID, mode)

	if s.metrics != nil {
		s.metrics.ActiveRuns.Inc()
		defer s.metrics.ActiveRuns.Dec()
		timer := prometheus.NewTimer(s.metrics.RunDuration.WithLabelValues(mode))
		defer timer.ObserveDuration()
	}

	if len(endpoints) == 0 || len(stamps) == 0 {
		log.Info("nothing to simulate", "endpoints", len(endpoints), "hours", len(stamps))
		return report, nil
	}

	if err := ctx.Err(); err != nil {
		report.Canceled = true
		report.finish(s.now())
		return report, err
	}

	siblings, err := s.store.SiblingCounts(ctx, transformerIDs(endpoints))
	if err != nil {
		return nil, fmt.Errorf("failed to count sibling endpoints: %w", err)
	}

	log.Info("simulation run started",
		"endpoints", len(endpoints),
		"hours", len(stamps),
		"workers", s.workers,
		"seed", seed,
	)

	var mu sync.Mutex
	collect := func(out tickOutcome) {
		mu.Lock()
		defer mu.Unlock()
		report.add(out)
	}

	t := ticker{sim: s, log: log, runID: report.RunID, mode: mode, seed: seed}

stamps:
	for _, ts := range stamps {
		g := new(errgroup.Group)
		g.SetLimit(s.workers)

		for i := range endpoints {
			if ctx.Err() != nil {
				report.Canceled = true
				_ = g.Wait()
				break stamps
			}

			ep := &endpoints[i]
			g.Go(func() error {
				collect(t.tick(ctx, ep, ts, siblings[ep.TransformerID]))
				return nil
			})
		}

		_ = g.Wait()
	}

	report.finish(s.now())

	if report.Canceled {
		log.Warn("simulation run canceled",
			"readings", report.Readings,
			"failed", report.Failed,
		)
		return report, ctx.Err()
	}

	log.Info("simulation run finished",
		"readings", report.Readings,
		"anomalies", report.Anomalies,
		"alerts", report.Alerts,
		"alert_failures", report.AlertFailures,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, nil
}

type tickOutcome struct {
	result      *TickResult
	err         *TickError
	alertFailed bool
}

func (r *Report) add(out tickOutcome) {
	if out.err != nil {
		r.Failed++
		r.Errors = append(r.Errors, *out.err)
		return
	}

	r.Readings++
	r.Results = append(r.Results, *out.result)
	if out.result.IsAnomaly {
		r.Anomalies++
	}
	if out.result.AlertID != 0 {
		r.Alerts++
	}
	if out.alertFailed {
		r.AlertFailures++
	}
}

func (r *Report) finish(now time.Time) {
	slices.SortFunc(r.Results, func(a, b TickResult) int {
		return cmp.Or(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.ConsumerID, b.ConsumerID))
	})
	slices.SortFunc(r.Errors, func(a, b TickError) int {
		return cmp.Or(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.ConsumerID, b.ConsumerID))
	})
	r.Duration = now.Sub(r.StartedAt)
}

func transformerIDs(endpoints []store.Endpoint) []uint {
	ids := make([]uint, 0, len(endpoints))
	for _, ep := range endpoints {
		ids = append(ids, ep.TransformerID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// tickRand derives the random source of one tick so that a seeded run gives
// the same readings whatever the worker scheduling.
func tickRand(seed uint64, endpointID uint, ts time.Time) *rand.Rand {
	return rand.New(rand.NewPCG(seed^(uint64(endpointID)*0x9E3779B97F4A7C15), uint64(ts.Unix())))
}
