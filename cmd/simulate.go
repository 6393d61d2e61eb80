package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/gridloss/internal/simulator"
	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/pkg/events"
	"procodus.dev/gridloss/pkg/logger"
	"procodus.dev/gridloss/pkg/mq"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulations against the database",
	Long: `Run simulations directly against the database:
- Without flags, takes one snapshot of every eligible endpoint
- With --hours N, backfills N hourly readings per endpoint
- With --interval, takes snapshots until interrupted
Scope flags narrow the run to one company, district, village or transformer.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().Int("hours", 0, "hours of history to backfill; 0 takes a snapshot")
	simulateCmd.Flags().Duration("interval", 0, "take snapshots at this interval until interrupted")
	addScopeFlags(simulateCmd)

	_ = viper.BindPFlag("simulate.hours", simulateCmd.Flags().Lookup("hours"))
	_ = viper.BindPFlag("simulate.interval", simulateCmd.Flags().Lookup("interval"))
}

func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().Uint("company", 0, "company id")
	cmd.Flags().Uint("district", 0, "district id")
	cmd.Flags().Uint("village", 0, "village id")
	cmd.Flags().Uint("transformer", 0, "transformer id")
}

func scopeFilter(cmd *cobra.Command) store.Filter {
	var f store.Filter
	f.CompanyID, _ = cmd.Flags().GetUint("company")
	f.DistrictID, _ = cmd.Flags().GetUint("district")
	f.VillageID, _ = cmd.Flags().GetUint("village")
	f.TransformerID, _ = cmd.Flags().GetUint("transformer")
	return f
}

// newAlertPublisher connects to RabbitMQ when rabbitmq.url is set. The
// returned publisher is nil otherwise.
func newAlertPublisher(log *slog.Logger) (*events.Publisher, error) {
	url := viper.GetString("rabbitmq.url")
	if url == "" {
		return nil, nil
	}

	client := mq.New(viper.GetString("rabbitmq.queue_name"), url,
		logger.WithComponent(log, "mq-client"),
		mq.WithDurableQueue(),
		mq.WithPersistentMessages(),
		mq.WithContentType(events.ContentType),
	)

	return events.NewPublisher(client, logger.WithComponent(log, "publisher"))
}

// newSimulator opens the database and builds a simulator on it. The returned
// func releases everything that was opened.
func newSimulator(log *slog.Logger) (*simulator.Simulator, *store.Repository, func(), error) {
	params, err := loadParams()
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := store.NewDB(dbConfig(log))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	closers := []func(){func() { _ = store.CloseDB(db, log) }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	repo, err := store.NewRepository(log, db, params.Thresholds)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	cfg := &simulator.Config{
		Logger:  logger.WithComponent(log, "simulator"),
		Store:   repo,
		Params:  params,
		Seed:    viper.GetUint64("simulation.seed"),
		Workers: viper.GetInt("simulation.workers"),
	}

	publisher, err := newAlertPublisher(log)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	if publisher != nil {
		cfg.Publisher = publisher
		closers = append(closers, func() { _ = publisher.Close() })
	}

	sim, err := simulator.New(cfg)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("failed to initialize simulator: %w", err)
	}

	return sim, repo, cleanup, nil
}

func logReport(log *slog.Logger, report *simulator.Report) {
	log.Info("simulation finished",
		"run_id", report.RunID,
		"mode", report.Mode,
		"seed", report.Seed,
		"endpoints", report.Endpoints,
		"hours", report.Hours,
		"readings", report.Readings,
		"anomalies", report.Anomalies,
		"alerts", report.Alerts,
		"alert_failures", report.AlertFailures,
		"failed", report.Failed,
		"canceled", report.Canceled,
		"duration", report.Duration,
	)
	for _, e := range report.Errors {
		log.Warn("tick failed", "error", e)
	}
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	log := GetLogger()

	sim, _, cleanup, err := newSimulator(log)
	if err != nil {
		log.Error("failed to set up simulation", "error", err)
		return err
	}
	defer cleanup()

	filter := scopeFilter(cmd)
	hours := viper.GetInt("simulate.hours")
	interval := viper.GetDuration("simulate.interval")

	if interval > 0 {
		if hours > 0 {
			return errors.New("--hours and --interval cannot be combined")
		}

		sched, err := simulator.NewScheduler(&simulator.SchedulerConfig{
			Logger:    logger.WithComponent(log, "scheduler"),
			Simulator: sim,
			Filter:    filter,
			Interval:  interval,
			Immediate: true,
			OnRun: func(report *simulator.Report, err error) {
				if report != nil {
					logReport(log, report)
				}
			},
		})
		if err != nil {
			return err
		}

		log.Info("taking periodic snapshots", "interval", interval, "scope", filter.Scope())
		return sched.Run(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report *simulator.Report
	if hours > 0 {
		log.Info("running historical simulation", "hours", hours, "scope", filter.Scope())
		report, err = sim.RunHistoricalFor(ctx, hours, filter)
	} else {
		log.Info("running snapshot simulation", "scope", filter.Scope())
		report, err = sim.RunSnapshot(ctx, filter)
	}

	if report != nil {
		logReport(log, report)
	}
	if err != nil {
		log.Error("simulation failed", "error", err)
		return err
	}

	return nil
}
