// Package backend runs the gridloss service: the database, the gRPC API, the
// alert event publisher, the metrics endpoint and the optional snapshot
// scheduler.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"gorm.io/gorm"

	"procodus.dev/gridloss/internal/grid"
	"procodus.dev/gridloss/internal/simulator"
	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/pkg/events"
	"procodus.dev/gridloss/pkg/logger"
	"procodus.dev/gridloss/pkg/lossapi"
	"procodus.dev/gridloss/pkg/metrics"
	"procodus.dev/gridloss/pkg/mq"
)

const metricsShutdownTimeout = 5 * time.Second

// Metrics groups the optional collectors of the server.
type Metrics struct {
	Backend   *metrics.BackendMetrics
	Store     *metrics.StoreMetrics
	Simulator *metrics.SimulatorMetrics
	MQ        *metrics.MQMetrics
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Metrics holds the optional Prometheus collectors
	Metrics Metrics

	// Database configuration
	DBDriver   string
	DBPath     string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// RabbitMQ configuration; an empty URL disables alert events
	RabbitMQURL string
	QueueName   string

	// Simulation configuration
	Params           grid.Params
	Seed             uint64
	Workers          int
	SimulateInterval time.Duration

	// gRPC configuration
	GRPCPort int

	// MetricsPort serves /metrics when positive
	MetricsPort int

	// Database port
	DBPort int
}

// Server represents the backend server that manages database, event
// publishing, simulation and gRPC.
type Server struct {
	logger        *slog.Logger
	db            *gorm.DB
	mqClient      *mq.Client
	grpcServer    *grpc.Server
	metricsServer *http.Server
	config        *ServerConfig
	wg            sync.WaitGroup
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	switch cfg.DBDriver {
	case "", store.DriverPostgres:
		if cfg.DBHost == "" {
			return nil, errors.New("database host cannot be empty")
		}

		if cfg.DBPort <= 0 {
			return nil, errors.New("database port must be positive")
		}

		if cfg.DBUser == "" {
			return nil, errors.New("database user cannot be empty")
		}

		if cfg.DBName == "" {
			return nil, errors.New("database name cannot be empty")
		}
	case store.DriverSQLite:
		if cfg.DBPath == "" {
			return nil, errors.New("database path cannot be empty")
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}

	if cfg.RabbitMQURL != "" && cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	if cfg.GRPCPort <= 0 {
		return nil, errors.New("gRPC port must be positive")
	}

	if cfg.SimulateInterval < 0 {
		return nil, errors.New("simulate interval cannot be negative")
	}

	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation parameters: %w", err)
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the backend server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting backend server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	db, err := store.NewDB(&store.DBConfig{
		Logger:   s.logger,
		Driver:   s.config.DBDriver,
		Path:     s.config.DBPath,
		Host:     s.config.DBHost,
		Port:     s.config.DBPort,
		User:     s.config.DBUser,
		Password: s.config.DBPassword,
		DBName:   s.config.DBName,
		SSLMode:  s.config.DBSSLMode,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	s.logger.Info("database initialized successfully")

	repo, err := store.NewRepository(s.logger, db, s.config.Params.Thresholds)
	if err != nil {
		return s.abort(fmt.Errorf("failed to initialize repository: %w", err))
	}
	if s.config.Metrics.Store != nil {
		repo.SetMetrics(s.config.Metrics.Store)
	}

	simCfg := &simulator.Config{
		Logger:  logger.WithComponent(s.logger, "simulator"),
		Store:   repo,
		Metrics: s.config.Metrics.Simulator,
		Params:  s.config.Params,
		Seed:    s.config.Seed,
		Workers: s.config.Workers,
	}

	var publisher *events.Publisher
	if s.config.RabbitMQURL != "" {
		publisher, err = s.newPublisher()
		if err != nil {
			return s.abort(err)
		}
		simCfg.Publisher = publisher
	}

	sim, err := simulator.New(simCfg)
	if err != nil {
		return s.abort(fmt.Errorf("failed to initialize simulator: %w", err))
	}

	service, err := NewLossService(s.logger, repo, sim, s.config.Metrics.Backend)
	if err != nil {
		return s.abort(fmt.Errorf("failed to initialize gRPC service: %w", err))
	}
	if publisher != nil {
		service.SetPublisher(publisher)
	}

	s.grpcServer = grpc.NewServer()
	lossapi.RegisterLossServiceServer(s.grpcServer, service)

	grpcAddr := fmt.Sprintf(":%d", s.config.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return s.abort(fmt.Errorf("failed to listen on %s: %w", grpcAddr, err))
	}

	s.logger.Info("starting gRPC server", "address", grpcAddr)

	serveErr := make(chan error, 2)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			serveErr <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	if s.config.MetricsPort > 0 {
		s.startMetrics(serveErr)
	}

	if s.config.SimulateInterval > 0 {
		if err := s.startScheduler(ctx, sim); err != nil {
			cancel()
			_ = s.Shutdown()
			return err
		}
	}

	s.logger.Info("backend server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-serveErr:
		s.logger.Error("server error", "error", err)
		cancel()
		_ = s.Shutdown()
		return err
	}

	cancel()
	return s.Shutdown()
}

// abort releases what Run has opened so far and returns err.
func (s *Server) abort(err error) error {
	if shutdownErr := s.Shutdown(); shutdownErr != nil {
		return fmt.Errorf("%w; %w", err, shutdownErr)
	}
	return err
}

func (s *Server) newPublisher() (*events.Publisher, error) {
	client := mq.New(s.config.QueueName, s.config.RabbitMQURL,
		logger.WithComponent(s.logger, "mq-client"),
		mq.WithDurableQueue(),
		mq.WithPersistentMessages(),
		mq.WithContentType(events.ContentType),
	)
	if s.config.Metrics.MQ != nil {
		client.SetMetrics(s.config.Metrics.MQ)
	}
	s.mqClient = client

	publisher, err := events.NewPublisher(client, logger.WithComponent(s.logger, "publisher"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	if s.config.Metrics.Backend != nil {
		publisher.SetMetrics(s.config.Metrics.Backend)
	}

	s.logger.Info("alert events enabled", "queue", s.config.QueueName)
	return publisher, nil
}

func (s *Server) startMetrics(serveErr chan<- error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	s.metricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("starting metrics server", "address", s.metricsServer.Addr)

	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
}

func (s *Server) startScheduler(ctx context.Context, sim *simulator.Simulator) error {
	sched, err := simulator.NewScheduler(&simulator.SchedulerConfig{
		Logger:    logger.WithComponent(s.logger, "scheduler"),
		Simulator: sim,
		Metrics:   s.config.Metrics.Simulator,
		Interval:  s.config.SimulateInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := sched.Run(ctx); err != nil {
			s.logger.Error("scheduler stopped with error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down backend server")

	var shutdownErr error

	if s.grpcServer != nil {
		s.logger.Info("stopping gRPC server")
		s.grpcServer.GracefulStop()
		s.logger.Info("gRPC server stopped")
	}

	// The scheduler exits once the run context is canceled.
	s.wg.Wait()

	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to stop metrics server", "error", err)
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("metrics server shutdown error: %w", err))
		}
		cancel()
	}

	if s.mqClient != nil {
		s.logger.Info("closing MQ client")
		if err := s.mqClient.Close(); err != nil {
			// A client that never connected has nothing to close.
			s.logger.Warn("failed to close MQ client", "error", err)
		}
	}

	if s.db != nil {
		s.logger.Info("closing database connection")
		if err := store.CloseDB(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("database close error: %w", err))
		}
		s.db = nil
	}

	if shutdownErr != nil {
		s.logger.Error("backend server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("backend server shutdown completed successfully")
	return nil
}
