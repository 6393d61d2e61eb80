package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/gridloss/internal/backend"
	"procodus.dev/gridloss/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gridloss server",
	Long: `Run the server that:
- Persists readings and alerts to PostgreSQL or sqlite
- Serves the LossService gRPC API
- Publishes alert events to RabbitMQ when configured
- Takes periodic snapshots when --simulate-interval is set
- Exposes Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("grpc-port", 9090, "gRPC server port")
	serveCmd.Flags().Int("metrics-port", 2112, "Prometheus metrics port; 0 disables")
	serveCmd.Flags().Duration("simulate-interval", 0, "interval between snapshot simulations; 0 disables")

	_ = viper.BindPFlag("serve.grpc.port", serveCmd.Flags().Lookup("grpc-port"))
	_ = viper.BindPFlag("serve.metrics.port", serveCmd.Flags().Lookup("metrics-port"))
	_ = viper.BindPFlag("serve.simulate_interval", serveCmd.Flags().Lookup("simulate-interval"))
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting gridloss server")

	params, err := loadParams()
	if err != nil {
		logger.Error("failed to load simulation parameters", "error", err)
		return err
	}

	db := dbConfig(logger)
	config := &backend.ServerConfig{
		Logger: logger,
		Metrics: backend.Metrics{
			Backend:   metrics.NewBackendMetrics(metrics.Namespace),
			Store:     metrics.NewStoreMetrics(metrics.Namespace),
			Simulator: metrics.NewSimulatorMetrics(metrics.Namespace),
			MQ:        metrics.NewMQMetrics(metrics.Namespace),
		},
		DBDriver:         db.Driver,
		DBPath:           db.Path,
		DBHost:           db.Host,
		DBPort:           db.Port,
		DBUser:           db.User,
		DBPassword:       db.Password,
		DBName:           db.DBName,
		DBSSLMode:        db.SSLMode,
		RabbitMQURL:      viper.GetString("rabbitmq.url"),
		QueueName:        viper.GetString("rabbitmq.queue_name"),
		Params:           params,
		Seed:             viper.GetUint64("simulation.seed"),
		Workers:          viper.GetInt("simulation.workers"),
		SimulateInterval: viper.GetDuration("serve.simulate_interval"),
		GRPCPort:         viper.GetInt("serve.grpc.port"),
		MetricsPort:      viper.GetInt("serve.metrics.port"),
	}

	server, err := backend.NewServer(config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return err
	}

	logger.Info("server configuration",
		"db_driver", config.DBDriver,
		"db_host", config.DBHost,
		"db_name", config.DBName,
		"alert_queue", config.QueueName,
		"alert_events", config.RabbitMQURL != "",
		"grpc_port", config.GRPCPort,
		"metrics_port", config.MetricsPort,
		"simulate_interval", config.SimulateInterval.Round(time.Second),
		"workers", config.Workers,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
