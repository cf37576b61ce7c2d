package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docpipe/extractd/internal/analysis"
	"github.com/docpipe/extractd/internal/config"
	"github.com/docpipe/extractd/internal/ingest"
	"github.com/docpipe/extractd/internal/objectstore"
	"github.com/docpipe/extractd/internal/orchestrator"
	"github.com/docpipe/extractd/internal/resultstore"
	"github.com/docpipe/extractd/internal/statusstore"
	"github.com/docpipe/extractd/internal/workerpool"
	"github.com/docpipe/extractd/shared/logger"
	"github.com/docpipe/extractd/shared/postgresql"
	"github.com/docpipe/extractd/shared/rabbitmq"
	"github.com/docpipe/extractd/shared/redis"
)

const consumerTag = "extractd-worker"

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

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.Int("capacity", cfg.Worker.Capacity),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	redisClient, err := initRedis(&cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	defer redisClient.Close()

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	objects, err := initObjectStore(&cfg.ObjectStore, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	engine, err := initEngine(&cfg.Engine, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize analysis engine: %w", err)
	}

	pool := workerpool.New(&workerpool.Config{
		Logger:    appLogger.Logger,
		Capacity:  cfg.Worker.Capacity,
		QueueSize: cfg.Worker.QueueSize,
	})
	pool.Start(context.Background())

	svc := orchestrator.New(orchestrator.Config{
		Logger:        appLogger.Logger,
		StatusStore:   statusstore.NewStore(redisClient.GetClient(), cfg.Extraction.StatusTTL, appLogger.Logger),
		ResultStore:   resultstore.NewStore(dbClient.GetDB(), appLogger.Logger),
		Pool:          pool,
		Engine:        engine,
		PreviewLength: cfg.Extraction.PreviewLength,
		ContentDedup:  cfg.Extraction.ContentDedup,
		StaleAfter:    cfg.Extraction.StaleAfter,
	})

	deliveries, err := rabbitClient.Consume(consumerTag, cfg.RabbitMQ.PrefetchCount)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	consumer := ingest.NewConsumer(appLogger.Logger, objects, svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Run(ctx, deliveries)
	}()

	appLogger.Info("Worker service is running",
		slog.String("queue", cfg.RabbitMQ.Queue),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down worker service...")
	case err := <-consumerDone:
		appLogger.Error("Consumer stopped unexpectedly",
			slog.Any("error", err),
		)
	}

	cancel()

	// In-flight jobs get to finish within the shutdown window.
	drained := make(chan struct{})
	go func() {
		svc.Drain()
		pool.Stop()
		close(drained)
	}()

	select {
	case <-drained:
		appLogger.Info("Worker service shutdown complete")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Shutdown timeout exceeded, abandoning in-flight jobs")
	}

	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
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

// initRedis initializes the status cache client
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	redisConfig := &redis.Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return redis.NewClient(redisConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		User:          cfg.User,
		Password:      cfg.Password,
		VHost:         cfg.VHost,
		Exchange:      cfg.Exchange,
		Queue:         cfg.Queue,
		RoutingKey:    cfg.RoutingKey,
		RetryAttempts: cfg.RetryAttempts,
		RetryInterval: cfg.RetryInterval,
		Heartbeat:     cfg.Heartbeat,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initObjectStore initializes the configured artifact store backend
func initObjectStore(cfg *config.ObjectStoreConfig, logger *slog.Logger) (objectstore.Store, error) {
	switch cfg.Backend {
	case "s3":
		return objectstore.NewS3(&objectstore.S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		}, logger)
	default:
		return objectstore.NewFS(cfg.BaseDir)
	}
}

// initEngine initializes the configured analysis engine
func initEngine(cfg *config.EngineConfig, logger *slog.Logger) (analysis.Engine, error) {
	switch cfg.Mode {
	case "remote":
		return analysis.NewRemote(cfg.URL, cfg.Timeout, logger), nil
	default:
		return analysis.NewPlainText(), nil
	}
}
