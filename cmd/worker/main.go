package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/config"
	amqpdelivery "github.com/Harsh-BH/execrelay/internal/delivery/amqp"
	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/logger"
	"github.com/Harsh-BH/execrelay/internal/pool"
	"github.com/Harsh-BH/execrelay/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/execrelay/internal/repository/redis"
	"github.com/Harsh-BH/execrelay/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWorker()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting execrelay record worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping PostgreSQL", zap.Error(err))
	}
	if err := postgres.Migrate(ctx, dbPool); err != nil {
		log.Fatal("Failed to migrate PostgreSQL", zap.Error(err))
	}
	log.Info("Connected to PostgreSQL")

	// Connect to Redis
	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal("Invalid Redis URL", zap.Error(err))
	}
	redisClient := goredis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis")

	// Initialize repositories and use case
	recordRepo := postgres.NewPostgresRecordRepository(dbPool)
	idempotencyStore := redisrepo.NewRedisIdempotencyStore(redisClient)
	recordUC := usecase.NewRecordExecutionUsecase(recordRepo, idempotencyStore, log)

	// Unbuffered: the consumer blocks until a worker is free, prefetch bounds the rest.
	records := make(chan *domain.RecordMessage)

	consumer, err := amqpdelivery.NewConsumer(cfg.RabbitMQ.URL, cfg.Worker.Prefetch, records, log)
	if err != nil {
		log.Fatal("Failed to initialize AMQP consumer", zap.Error(err))
	}
	defer consumer.Close()
	log.Info("Connected to RabbitMQ")

	workerPool := pool.NewWorkerPool(cfg.Worker.PoolSize, records, recordUC, log)
	workerPool.Start(ctx)

	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error("AMQP consumer error", zap.Error(err))
			cancel()
		}
	}()

	// Start Prometheus metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Worker.MetricsPort), Handler: mux}
	go func() {
		log.Info("Metrics server listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down worker...")
	cancel()

	// Wait for workers to finish in-flight records
	workerPool.Stop()
	_ = metricsSrv.Close()

	log.Info("Worker stopped")
}
