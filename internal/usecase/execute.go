package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/metrics"
	"github.com/Harsh-BH/execrelay/internal/publisher"
)

// RequestValidator bounds-checks a request without side effects.
type RequestValidator interface {
	Validate(req *domain.ExecutionRequest) error
}

// UserLimiter charges one request against a requestor's budget.
type UserLimiter interface {
	AllowUser(ctx context.Context, requestorID string) bool
}

// Dispatcher runs a validated request through the providers.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *domain.ExecutionRequest) (*domain.ExecutionResult, error)
}

// ExecuteUsecase handles one execution request end to end:
// validate → user rate limit → dispatch → publish record.
type ExecuteUsecase struct {
	validator  RequestValidator
	limiter    UserLimiter
	dispatcher Dispatcher
	publisher  publisher.Publisher
	logger     *zap.Logger
}

// NewExecuteUsecase creates a new ExecuteUsecase.
func NewExecuteUsecase(
	validator RequestValidator,
	limiter UserLimiter,
	dispatcher Dispatcher,
	pub publisher.Publisher,
	logger *zap.Logger,
) *ExecuteUsecase {
	return &ExecuteUsecase{
		validator:  validator,
		limiter:    limiter,
		dispatcher: dispatcher,
		publisher:  pub,
		logger:     logger,
	}
}

// Execute returns the terminal result for req. The result is never nil; the
// error is a *domain.ExecError when the status is rejected, rateLimited or
// allProvidersExhausted.
func (uc *ExecuteUsecase) Execute(ctx context.Context, req *domain.ExecutionRequest) (*domain.ExecutionResult, error) {
	if req == nil {
		return &domain.ExecutionResult{Status: domain.StatusRejected},
			domain.NewExecError(domain.KindMalformedRequest, "request is empty")
	}
	if req.RequestID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return &domain.ExecutionResult{Status: domain.StatusRejected}, fmt.Errorf("generate UUIDv7: %w", err)
		}
		req.RequestID = id.String()
	}

	log := uc.logger.With(
		zap.String("request_id", req.RequestID),
		zap.String("requestor_id", req.RequestorID),
	)

	if err := uc.validator.Validate(req); err != nil {
		// Rejected requests carry untrusted language keys; keep them out of metric labels.
		metrics.ExecutionsTotal.WithLabelValues("", string(domain.StatusRejected)).Inc()
		log.Info("Execution request rejected",
			zap.String("code", string(domain.KindOf(err))),
			zap.Error(err),
		)
		return &domain.ExecutionResult{Status: domain.StatusRejected}, err
	}

	if !uc.limiter.AllowUser(ctx, req.RequestorID) {
		res := &domain.ExecutionResult{Status: domain.StatusRateLimited}
		uc.finish(ctx, log, req, res)
		return res, domain.NewExecError(domain.KindUserRateLimited, "requestor %q exceeded its request budget", req.RequestorID)
	}

	res, err := uc.dispatcher.Dispatch(ctx, req)
	if res == nil {
		res = &domain.ExecutionResult{Status: domain.StatusAllProvidersExhausted}
	}
	uc.finish(ctx, log, req, res)
	return res, err
}

// finish counts and publishes a terminal result. Publishing is best-effort.
func (uc *ExecuteUsecase) finish(ctx context.Context, log *zap.Logger, req *domain.ExecutionRequest, res *domain.ExecutionResult) {
	metrics.ExecutionsTotal.WithLabelValues(req.Language, string(res.Status)).Inc()

	rec, err := domain.NewExecutionRecord(req, res)
	if err != nil {
		log.Error("Failed to build execution record", zap.Error(err))
		return
	}

	// The caller may already be gone; the record should still be emitted.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := uc.publisher.Publish(pubCtx, rec); err != nil {
		log.Warn("Failed to publish execution record",
			zap.String("record_id", rec.RecordID.String()),
			zap.Error(err),
		)
		return
	}

	log.Info("Execution finished",
		zap.String("status", string(res.Status)),
		zap.String("provider_id", res.Provider()),
		zap.String("record_id", rec.RecordID.String()),
	)
}
