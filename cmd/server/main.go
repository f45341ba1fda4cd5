package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/config"
	handler "github.com/Harsh-BH/execrelay/internal/delivery/http"
	"github.com/Harsh-BH/execrelay/internal/dispatch"
	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/health"
	"github.com/Harsh-BH/execrelay/internal/logger"
	"github.com/Harsh-BH/execrelay/internal/normalize"
	"github.com/Harsh-BH/execrelay/internal/provider"
	"github.com/Harsh-BH/execrelay/internal/publisher"
	"github.com/Harsh-BH/execrelay/internal/ratelimit"
	"github.com/Harsh-BH/execrelay/internal/registry"
	"github.com/Harsh-BH/execrelay/internal/repository/postgres"
	"github.com/Harsh-BH/execrelay/internal/usecase"
	"github.com/Harsh-BH/execrelay/internal/validator"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
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

	log.Info("Starting execrelay API server")

	gin.SetMode(cfg.Server.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load provider registry
	reg, err := registry.Load(cfg.Exec.ProvidersFile)
	if err != nil {
		log.Fatal("Failed to load provider registry", zap.Error(err))
	}
	log.Info("Provider registry loaded",
		zap.String("file", cfg.Exec.ProvidersFile),
		zap.Int("providers", len(reg.All())),
	)

	checks := map[string]handler.DependencyCheck{}

	// Shared dispatch state: rate windows and provider health
	var (
		rateStore   ratelimit.Store
		healthStore health.Store
	)
	if cfg.SharedState() {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to ping Redis", zap.Error(err))
		}
		log.Info("Connected to Redis")

		rateStore = ratelimit.NewRedisStore(rdb)
		healthStore = health.NewRedisStore(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		mem := ratelimit.NewMemoryStore()
		mem.StartJanitor(ctx, cfg.Exec.JanitorInterval)
		rateStore = mem
		healthStore = health.NewMemoryStore()
		log.Info("Using in-process dispatch state")
	}

	limiter := ratelimit.NewLimiter(rateStore, domain.RateLimit{
		Window:   cfg.Exec.UserRateWindow,
		MaxCalls: cfg.Exec.UserRateLimit,
	}, log)

	probe := health.NewProbe(healthStore, health.Policy{
		FailureThreshold: cfg.Health.FailureThreshold,
		BaseCooldown:     cfg.Health.BaseCooldown,
		MaxCooldown:      cfg.Health.MaxCooldown,
		CacheTTL:         cfg.Health.CacheTTL,
	}, log)

	// Provider clients
	clients := provider.NewClients(reg.All(), provider.NewHTTPClient())
	invokers := make(map[string]dispatch.Invoker, len(clients))
	pingers := make(map[string]health.Pinger, len(clients))
	for id, c := range clients {
		invokers[id] = c
		pingers[id] = c
	}

	monitor := health.NewMonitor(probe, pingers, cfg.Health.CheckInterval, cfg.Health.CheckTimeout, log)
	monitor.Start()
	defer monitor.Stop()

	engine := dispatch.NewEngine(reg, invokers, probe, limiter, normalize.New(cfg.Exec.MaxOutputBytes), log)

	// Execution records
	var (
		pub     publisher.Publisher
		records handler.RecordReader
	)
	if cfg.Records.Enabled {
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
		checks["postgres"] = dbPool.Ping

		pub, err = publisher.NewRabbitMQPublisher(cfg.RabbitMQ.URL, log)
		if err != nil {
			log.Fatal("Failed to initialize RabbitMQ publisher", zap.Error(err))
		}
		log.Info("Connected to RabbitMQ")

		records = usecase.NewGetExecutionUsecase(postgres.NewPostgresRecordRepository(dbPool), log)
	} else {
		pub = publisher.NewLogPublisher(log)
	}
	defer pub.Close()

	// Initialize use cases
	executeUC := usecase.NewExecuteUsecase(
		validator.New(reg, cfg.Exec.MaxCodeBytes, cfg.Exec.MaxStdinBytes),
		limiter,
		engine,
		pub,
		log,
	)

	// Initialize router
	router := handler.NewRouter(ctx, &handler.RouterDeps{
		Executor:     executeUC,
		Records:      records,
		Providers:    reg,
		Languages:    reg,
		Health:       probe,
		Checks:       checks,
		Logger:       log,
		RatePerMin:   cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("API server stopped")
}
