// Package main provides the gridloss command line.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "gridloss",
		Short: "Electricity distribution loss simulator",
		Long: `Simulates sent and received measurements for every consumer connection of a
distribution network, classifies losses and raises alerts:
- serve: runs the gRPC API and the periodic simulation
- simulate: runs snapshot or historical simulations against the database
- seed: creates a sample network
- alerts: lists, acknowledges, resolves and watches alerts`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/gridloss/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	// Database flags shared by serve, simulate and seed
	rootCmd.PersistentFlags().String("db-driver", "postgres", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("db-path", "gridloss.db", "sqlite database file")
	rootCmd.PersistentFlags().String("db-host", "localhost", "PostgreSQL host")
	rootCmd.PersistentFlags().Int("db-port", 5432, "PostgreSQL port")
	rootCmd.PersistentFlags().String("db-user", "postgres", "PostgreSQL user")
	rootCmd.PersistentFlags().String("db-password", "", "PostgreSQL password")
	rootCmd.PersistentFlags().String("db-name", "gridloss", "PostgreSQL database name")
	rootCmd.PersistentFlags().String("db-sslmode", "disable", "PostgreSQL SSL mode")

	// Alert events
	rootCmd.PersistentFlags().String("rabbitmq-url", "", "RabbitMQ URL; empty disables alert events")
	rootCmd.PersistentFlags().String("queue-name", "grid-alerts", "RabbitMQ queue name for alert events")

	// Simulation
	rootCmd.PersistentFlags().Uint64("seed", 0, "simulation seed; 0 picks a random one")
	rootCmd.PersistentFlags().Int("workers", 4, "concurrent endpoint simulations")

	// Bind flags to viper
	bindings := map[string]string{
		"log.level":           "log-level",
		"db.driver":           "db-driver",
		"db.path":             "db-path",
		"db.host":             "db-host",
		"db.port":             "db-port",
		"db.user":             "db-user",
		"db.password":         "db-password",
		"db.name":             "db-name",
		"db.sslmode":          "db-sslmode",
		"rabbitmq.url":        "rabbitmq-url",
		"rabbitmq.queue_name": "queue-name",
		"simulation.seed":     "seed",
		"simulation.workers":  "workers",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			log.Fatalf("failed to bind %s flag: %v", flag, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := InitConfig(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
