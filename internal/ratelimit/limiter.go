package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/metrics"
)

const (
	ScopeUser     = "user"
	ScopeProvider = "provider"
)

// Limiter applies the user and provider scopes on top of a Store.
// Store errors fail open: a broken counter store must not take the relay down.
type Limiter struct {
	store     Store
	userLimit domain.RateLimit
	now       func() time.Time
	logger    *zap.Logger
}

// NewLimiter creates a Limiter enforcing userLimit per requestor.
func NewLimiter(store Store, userLimit domain.RateLimit, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:     store,
		userLimit: userLimit,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the wall clock, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// AllowUser charges one request against the requestor's window.
func (l *Limiter) AllowUser(ctx context.Context, requestorID string) bool {
	return l.take(ctx, ScopeUser, requestorID, l.userLimit)
}

// AllowProvider charges one invocation against the provider's window.
// Client-side providers and providers without a limit are always allowed.
func (l *Limiter) AllowProvider(ctx context.Context, p domain.Provider) bool {
	if p.IsClientSide() {
		return true
	}
	return l.take(ctx, ScopeProvider, p.ID, p.RateLimit)
}

func (l *Limiter) take(ctx context.Context, scope, id string, limit domain.RateLimit) bool {
	if limit.Unlimited() {
		return true
	}

	w, ok, err := l.store.Take(ctx, scope+":"+id, limit, l.now())
	if err != nil {
		l.logger.Warn("Rate limit store unavailable, allowing call",
			zap.String("scope", scope),
			zap.String("key", id),
			zap.Error(err),
		)
		return true
	}
	if !ok {
		metrics.RateLimitRejections.WithLabelValues(scope).Inc()
		l.logger.Debug("Rate limit exceeded",
			zap.String("scope", scope),
			zap.String("key", id),
			zap.Time("window_start", w.WindowStart),
			zap.Int("count", w.Count),
		)
	}
	return ok
}
