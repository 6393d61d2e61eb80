package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/gridloss/internal/seed"
	"procodus.dev/gridloss/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the sample distribution network",
	Long: `Create the sample network: one company with three districts, four to six
transformers per village and eight to ten consumers per transformer. Does
nothing when the company already exists. With --with-readings, backfills
--hours of hourly readings for the whole network.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().Bool("with-readings", false, "also generate historical readings")
	seedCmd.Flags().Int("hours", 24, "hours of readings to generate with --with-readings")

	_ = viper.BindPFlag("seed.with_readings", seedCmd.Flags().Lookup("with-readings"))
	_ = viper.BindPFlag("seed.hours", seedCmd.Flags().Lookup("hours"))
}

func runSeed(_ *cobra.Command, _ []string) error {
	logger := GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, repo, cleanup, err := newSimulator(logger)
	if err != nil {
		logger.Error("failed to set up seeding", "error", err)
		return err
	}
	defer cleanup()

	seeder, err := seed.New(&seed.Config{
		Logger: logger,
		Store:  repo,
		Seed:   viper.GetUint64("simulation.seed"),
	})
	if err != nil {
		return err
	}

	result, err := seeder.Run(ctx)
	if err != nil {
		logger.Error("seeding failed", "error", err)
		return err
	}

	logger.Info("network ready",
		"company", result.Company.Code,
		"created", result.Created,
		"districts", result.Counts.Districts,
		"villages", result.Counts.Villages,
		"transformers", result.Counts.Transformers,
		"endpoints", result.Counts.Endpoints,
	)

	if !viper.GetBool("seed.with_readings") {
		return nil
	}

	hours := viper.GetInt("seed.hours")
	logger.Info("generating historical readings", "hours", hours)

	report, err := sim.RunHistoricalFor(ctx, hours, store.Filter{CompanyID: result.Company.ID})
	if report != nil {
		logReport(logger, report)
	}
	if err != nil {
		logger.Error("historical simulation failed", "error", err)
		return err
	}

	return nil
}
