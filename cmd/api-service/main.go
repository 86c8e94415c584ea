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

	"github.com/cuongbtq/mediaqueue/internal/api/handler"
	"github.com/cuongbtq/mediaqueue/internal/api/router"
	"github.com/cuongbtq/mediaqueue/internal/artifact"
	"github.com/cuongbtq/mediaqueue/internal/config"
	"github.com/cuongbtq/mediaqueue/internal/delivery"
	"github.com/cuongbtq/mediaqueue/internal/jobstore"
	"github.com/cuongbtq/mediaqueue/internal/metrics"
	"github.com/cuongbtq/mediaqueue/internal/migrate"
	"github.com/cuongbtq/mediaqueue/internal/settings"
	"github.com/cuongbtq/mediaqueue/internal/submission"
	"github.com/cuongbtq/mediaqueue/shared/logger"
	"github.com/cuongbtq/mediaqueue/shared/postgresql"
	"github.com/cuongbtq/mediaqueue/shared/redis"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const maxUploadMemory = 32 << 20

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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
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

	redisClient, err := initRedis(&cfg.Redis, appLogger.Component("redis"))
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	uploads, err := artifact.NewManager(cfg.Worker.ScratchDir, appLogger.Component("artifact"))
	if err != nil {
		return fmt.Errorf("failed to initialize upload directory: %w", err)
	}

	r := initRouter(cfg, appLogger.Logger, dbClient, redisClient, uploads)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
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

// initRedis initializes the Redis client holding channel sets and live statuses
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

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, dbClient *postgresql.Client, redisClient *redis.Client, uploads *artifact.Manager) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	jobs := jobstore.New(dbClient.GetDB(), logger.With(slog.String("component", "jobstore")))
	settingsStore := settings.NewStore(dbClient.GetDB(), logger.With(slog.String("component", "settings")))
	resolver := settings.NewResolver(settingsStore, cfg.Limits.DefaultUploadBytes(), cfg.CategoryDefaults(), logger)

	handlerDeps := &handler.Dependencies{
		Logger:         logger,
		Jobs:           jobs,
		Submitter:      submission.NewService(jobs, uploads, resolver, logger.With(slog.String("component", "submission"))),
		Statuses:       delivery.NewStatusMirror(redisClient.GetClient(), cfg.Redis.StatusTTL),
		Settings:       settingsStore,
		Channels:       delivery.NewRedisRegistry(redisClient.GetClient(), logger.With(slog.String("component", "registry"))),
		MaxUploadLimit: cfg.Limits.MaxUploadBytes(),
	}

	return router.SetupRouter(handlerDeps, router.Options{
		AdminTokenHash: cfg.Admin.TokenHash,
		Health: map[string]router.HealthChecker{
			"postgres": dbClient,
			"redis":    redisClient,
		},
		MaxUploadMemory: maxUploadMemory,
	})
}
