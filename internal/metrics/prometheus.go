package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts terminal outcomes by language and status.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execrelay_executions_total",
			Help: "Total number of execution requests by terminal status",
		},
		[]string{"language", "status"},
	)

	// DispatchDuration tracks end-to-end dispatch time in seconds, fallbacks included.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execrelay_dispatch_duration_seconds",
			Help:    "Duration of provider dispatch in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"language"},
	)

	// ProviderAttempts counts every provider considered, by outcome.
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execrelay_provider_attempts_total",
			Help: "Provider attempts by outcome (succeeded, failed, skipped_unhealthy, ...)",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderFailures counts provider failures by error kind.
	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execrelay_provider_failures_total",
			Help: "Provider failures by error kind",
		},
		[]string{"provider", "kind"},
	)

	// ProviderHealthy is 1 while a provider is considered healthy, 0 during cooldown.
	ProviderHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "execrelay_provider_healthy",
			Help: "Provider health as seen by this instance (1 healthy, 0 cooling down)",
		},
		[]string{"provider"},
	)

	// RateLimitRejections counts rate limit rejections by scope (user, provider).
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execrelay_rate_limit_rejections_total",
			Help: "Rate limit rejections by scope",
		},
		[]string{"scope"},
	)

	// RecordsPersisted counts execution records written by the worker, by result.
	RecordsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execrelay_records_persisted_total",
			Help: "Execution records processed by the recorder worker",
		},
		[]string{"result"},
	)

	// WorkersActive tracks the number of currently active recorder workers.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "execrelay_workers_active",
			Help: "Number of currently active worker goroutines",
		},
	)
)
