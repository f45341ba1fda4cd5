package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/delivery/http/middleware"
)

// RouterDeps carries everything the router needs.
type RouterDeps struct {
	Executor     Executor
	Records      RecordReader // nil disables the record lookup routes
	Providers    ProviderLister
	Languages    LanguageLister
	Health       HealthSnapshotter
	Checks       map[string]DependencyCheck
	Logger       *zap.Logger
	RatePerMin   int
	RateBurst    int
	MaxBodyBytes int64
}

// NewRouter creates and configures the Gin router with all routes and middleware.
// ctx bounds background goroutines owned by middleware.
func NewRouter(ctx context.Context, deps *RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		healthHandler := NewHealthHandler(deps.Checks, deps.Logger)
		v1.GET("/health", healthHandler.Health)

		langHandler := NewLanguageHandler(deps.Languages)
		v1.GET("/languages", langHandler.List)

		provHandler := NewProviderHandler(deps.Providers, deps.Health)
		v1.GET("/providers", provHandler.List)

		execs := v1.Group("/executions")
		execs.Use(middleware.RateLimiter(ctx, deps.RatePerMin, deps.RateBurst))
		execs.Use(middleware.Requestor())
		{
			execHandler := NewExecutionHandler(deps.Executor, deps.Records, deps.Logger)
			execs.POST("", middleware.BodySizeLimit(deps.MaxBodyBytes), execHandler.Execute)

			wsHandler := NewWebSocketHandler(deps.Executor, deps.MaxBodyBytes, deps.Logger)
			execs.GET("/stream", wsHandler.Stream)

			if deps.Records != nil {
				execs.GET("", execHandler.List)
				execs.GET("/:id", execHandler.GetByID)
			}
		}
	}

	return router
}
