// Package dispatch runs the priority-ordered fallback loop over providers.
//
// For each eligible provider, in ascending priority: skip it if unhealthy,
// skip it if its own rate limit is spent, otherwise invoke it under its
// timeout. A failure is recorded and the loop moves on; the first success
// is normalized and returned. A client-side provider ends the loop with a
// directive instead of an invocation.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/metrics"
)

// Invoker submits a request to one remote provider and returns its raw payload.
type Invoker interface {
	Invoke(ctx context.Context, req *domain.ExecutionRequest) ([]byte, error)
}

// Providers yields the providers able to run a language, in dispatch order.
type Providers interface {
	Eligible(language string) []domain.Provider
}

// Health gates and records provider health.
type Health interface {
	Healthy(ctx context.Context, providerID string) bool
	RecordFailure(ctx context.Context, providerID string, kind domain.ErrorKind) domain.ProviderHealthState
	RecordSuccess(ctx context.Context, providerID string)
}

// ProviderLimiter charges one invocation against a provider's rate limit.
type ProviderLimiter interface {
	AllowProvider(ctx context.Context, p domain.Provider) bool
}

// Normalizer maps a provider payload to canonical output.
type Normalizer interface {
	Normalize(adapter domain.Adapter, providerID string, payload []byte) (domain.Output, error)
}

// Engine is safe for concurrent use; it holds no per-request state.
type Engine struct {
	providers  Providers
	invokers   map[string]Invoker
	health     Health
	limiter    ProviderLimiter
	normalizer Normalizer
	logger     *zap.Logger
}

// NewEngine wires the dispatch loop. invokers is keyed by provider id.
func NewEngine(
	providers Providers,
	invokers map[string]Invoker,
	health Health,
	limiter ProviderLimiter,
	normalizer Normalizer,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		providers:  providers,
		invokers:   invokers,
		health:     health,
		limiter:    limiter,
		normalizer: normalizer,
		logger:     logger,
	}
}

// Dispatch runs req through the eligible providers. The returned result is
// never nil and always carries the attempt log. The error is non-nil only
// when every provider was exhausted.
func (e *Engine) Dispatch(ctx context.Context, req *domain.ExecutionRequest) (*domain.ExecutionResult, error) {
	start := time.Now()
	defer func() {
		metrics.DispatchDuration.WithLabelValues(req.Language).Observe(time.Since(start).Seconds())
	}()

	log := e.logger.With(
		zap.String("request_id", req.RequestID),
		zap.String("language", req.Language),
	)

	result := &domain.ExecutionResult{}
	var lastErr error

	for _, p := range e.providers.Eligible(req.Language) {
		if err := ctx.Err(); err != nil {
			lastErr = err
			log.Info("Dispatch cancelled by caller", zap.Error(err))
			break
		}

		if p.IsClientSide() {
			e.attempt(result, p.ID, domain.OutcomeDelegated, "", 0)
			id := p.ID
			result.Status = domain.StatusClientSideDirective
			result.ProviderUsed = &id
			log.Info("Delegating execution to client-side context", zap.String("provider_id", p.ID))
			return result, nil
		}

		if !e.health.Healthy(ctx, p.ID) {
			e.attempt(result, p.ID, domain.OutcomeSkippedUnhealthy, "", 0)
			log.Debug("Skipping unhealthy provider", zap.String("provider_id", p.ID))
			continue
		}

		if !e.limiter.AllowProvider(ctx, p) {
			e.attempt(result, p.ID, domain.OutcomeSkippedRateLimited, domain.KindProviderRateLimited, 0)
			log.Debug("Skipping rate-limited provider", zap.String("provider_id", p.ID))
			continue
		}

		out, elapsed, err := e.invoke(ctx, p, req)
		if err != nil {
			if ctx.Err() != nil {
				// The caller gave up; the provider is not to blame.
				lastErr = ctx.Err()
				e.attempt(result, p.ID, domain.OutcomeFailed, domain.KindProviderUnavailable, elapsed)
				log.Info("Dispatch cancelled by caller", zap.String("provider_id", p.ID), zap.Error(ctx.Err()))
				break
			}

			kind := domain.KindOf(err)
			if !kind.IsProviderFailure() {
				kind = domain.KindProviderUnavailable
			}
			lastErr = err
			e.attempt(result, p.ID, domain.OutcomeFailed, kind, elapsed)
			metrics.ProviderFailures.WithLabelValues(p.ID, string(kind)).Inc()
			e.health.RecordFailure(ctx, p.ID, kind)
			log.Warn("Provider attempt failed, falling back",
				zap.String("provider_id", p.ID),
				zap.String("kind", string(kind)),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
			continue
		}

		e.health.RecordSuccess(ctx, p.ID)
		e.attempt(result, p.ID, domain.OutcomeSucceeded, "", elapsed)

		id := p.ID
		result.Status = domain.StatusSuccess
		result.ProviderUsed = &id
		result.Stdout = out.Stdout
		result.Stderr = out.Stderr
		result.ExitCode = out.ExitCode
		result.ExecutionTimeMs = out.ExecutionTimeMs
		result.Truncated = out.Truncated
		if result.ExecutionTimeMs == 0 {
			result.ExecutionTimeMs = elapsed.Milliseconds()
		}
		log.Info("Execution completed",
			zap.String("provider_id", p.ID),
			zap.Int("exit_code", out.ExitCode),
			zap.Int("attempts", len(result.Attempts)),
		)
		return result, nil
	}

	result.Status = domain.StatusAllProvidersExhausted
	msg := "no provider produced a result"
	if lastErr != nil {
		msg = fmt.Sprintf("no provider produced a result, last error: %v", lastErr)
	}
	execErr := domain.NewExecError(domain.KindAllProvidersExhausted, "%s", msg)
	execErr.Err = lastErr
	log.Warn("All providers exhausted", zap.Int("attempts", len(result.Attempts)), zap.Error(lastErr))
	return result, execErr
}

// invoke calls one provider under its timeout and normalizes the payload.
// A panic in the provider path is reported as ProviderUnavailable.
func (e *Engine) invoke(ctx context.Context, p domain.Provider, req *domain.ExecutionRequest) (out domain.Output, elapsed time.Duration, err error) {
	inv, ok := e.invokers[p.ID]
	if !ok {
		return domain.Output{}, 0, domain.ProviderError(domain.KindProviderUnavailable, p.ID,
			errors.New("dispatch: no invoker configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		elapsed = time.Since(start)
		if r := recover(); r != nil {
			e.logger.Error("Provider adapter panicked",
				zap.String("provider_id", p.ID),
				zap.Any("panic", r),
			)
			out = domain.Output{}
			err = domain.ProviderError(domain.KindProviderUnavailable, p.ID, fmt.Errorf("dispatch: panic: %v", r))
		}
	}()

	payload, err := inv.Invoke(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && domain.KindOf(err) == domain.KindInternal {
			err = domain.ProviderError(domain.KindProviderUnavailable, p.ID,
				fmt.Errorf("dispatch: timed out after %s: %w", p.Timeout, err))
		}
		return domain.Output{}, 0, err
	}
	out, err = e.normalizer.Normalize(p.Adapter, p.ID, payload)
	return out, 0, err
}

func (e *Engine) attempt(result *domain.ExecutionResult, providerID string, outcome domain.AttemptOutcome, kind domain.ErrorKind, elapsed time.Duration) {
	result.Attempts = append(result.Attempts, domain.Attempt{
		ProviderID: providerID,
		Outcome:    outcome,
		ErrorKind:  kind,
		DurationMs: elapsed.Milliseconds(),
	})
	metrics.ProviderAttempts.WithLabelValues(providerID, string(outcome)).Inc()
}
