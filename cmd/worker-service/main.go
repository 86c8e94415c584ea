package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/artifact"
	"github.com/cuongbtq/mediaqueue/internal/config"
	"github.com/cuongbtq/mediaqueue/internal/delivery"
	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/jobstore"
	"github.com/cuongbtq/mediaqueue/internal/metrics"
	"github.com/cuongbtq/mediaqueue/internal/migrate"
	"github.com/cuongbtq/mediaqueue/internal/processor"
	"github.com/cuongbtq/mediaqueue/internal/settings"
	"github.com/cuongbtq/mediaqueue/internal/worker"
	"github.com/cuongbtq/mediaqueue/shared/logger"
	"github.com/cuongbtq/mediaqueue/shared/postgresql"
	"github.com/cuongbtq/mediaqueue/shared/rabbitmq"
	"github.com/cuongbtq/mediaqueue/shared/redis"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Component("postgresql"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if cfg.Database.AutoMigrate {
		if err := migrate.Run(dbClient.DSN()); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		appLogger.Info("Database migrations applied")
	}

	if err := metrics.RegisterDB(dbClient.GetDB().DB, cfg.Database.Database); err != nil {
		appLogger.Warn("Failed to register database metrics", slog.Any("error", err))
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	redisClient, err := initRedis(&cfg.Redis, appLogger.Component("redis"))
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	artifacts, err := artifact.NewManager(cfg.Worker.ScratchDir, appLogger.Component("artifact"))
	if err != nil {
		return fmt.Errorf("failed to initialize scratch directory: %w", err)
	}

	settingsStore := settings.NewStore(dbClient.GetDB(), appLogger.Component("settings"))
	resolver := settings.NewResolver(
		settingsStore,
		cfg.Limits.DefaultUploadBytes(),
		cfg.CategoryDefaults(),
		appLogger.Component("settings"),
	)

	mirror := delivery.NewStatusMirror(redisClient.GetClient(), cfg.Redis.StatusTTL)

	workerInstance, err := worker.NewWorker(&worker.Config{
		Logger:             appLogger.Component("worker"),
		Store:              jobstore.New(dbClient.GetDB(), appLogger.Component("jobstore")),
		Registry:           delivery.NewRedisRegistry(redisClient.GetClient(), appLogger.Component("registry")),
		Resolver:           resolver,
		Notifier:           delivery.NewAMQPNotifier(rabbitClient, mirror, appLogger.Component("delivery")),
		Artifacts:          artifacts,
		Processors:         buildProcessors(cfg.Worker.Categories, appLogger.Component("processor")),
		Categories:         categoryConfigs(cfg.Worker.Categories),
		PollInterval:       cfg.Worker.PollInterval,
		StoreRetryInterval: cfg.Worker.StoreRetryInterval,
		ProgressInterval:   cfg.Worker.ProgressInterval,
		FinalizeTimeout:    cfg.Worker.FinalizeTimeout,
		ShutdownTimeout:    cfg.Worker.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsServer *http.Server
	if cfg.Metrics.Port != 0 {
		metricsServer = metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port))
		go func() {
			appLogger.Info("Metrics server listening", slog.Int("port", cfg.Metrics.Port))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error("Metrics server error", slog.Any("error", err))
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
		workerInstance.Stop()
		runErr = <-errChan
	case runErr = <-errChan:
	}

	if runErr != nil {
		appLogger.Warn("Worker stopped with error", slog.Any("error", runErr))
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed", slog.Any("error", err))
		}
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}

// buildProcessors wires a command-backed processor for every category that
// has a command configured.
func buildProcessors(categories map[string]config.CategoryConfig, logger *slog.Logger) processor.Set {
	cmd := func(c domain.Category) (processor.Command, bool) {
		cc, ok := categories[string(c)]
		if !ok || len(cc.Command) == 0 {
			return processor.Command{}, false
		}
		return processor.Command{Args: cc.Command}, true
	}

	var set processor.Set
	if c, ok := cmd(domain.CategoryBackgroundRemoval); ok {
		set.BackgroundRemoval = processor.NewBackgroundRemoval(c, logger)
	}
	if c, ok := cmd(domain.CategoryDedup); ok {
		set.Dedup = processor.NewDedup(c, logger)
	}
	if c, ok := cmd(domain.CategoryDownloadVideo); ok {
		set.DownloadVideo = processor.NewVideoDownload(c, logger)
	}
	if c, ok := cmd(domain.CategoryDownloadAudio); ok {
		set.DownloadAudio = processor.NewAudioDownload(c, logger)
	}
	return set
}

func categoryConfigs(categories map[string]config.CategoryConfig) map[domain.Category]worker.CategoryConfig {
	out := make(map[domain.Category]worker.CategoryConfig, len(categories))
	for name, cc := range categories {
		out[domain.Category(name)] = worker.CategoryConfig{
			Enabled: cc.Enabled,
			Timeout: cc.Timeout,
		}
	}
	return out
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client used to reach the chat gateway
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		BindingKey:         cfg.BindingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRedis initializes the Redis client backing the channel registry
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.Config{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
}
