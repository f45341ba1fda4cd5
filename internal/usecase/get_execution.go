package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// GetExecutionUsecase reads stored execution records.
type GetExecutionUsecase struct {
	repo   repository.ExecutionRecordRepository
	logger *zap.Logger
}

// NewGetExecutionUsecase creates a new GetExecutionUsecase.
func NewGetExecutionUsecase(repo repository.ExecutionRecordRepository, logger *zap.Logger) *GetExecutionUsecase {
	return &GetExecutionUsecase{
		repo:   repo,
		logger: logger,
	}
}

// Execute retrieves a record by its ID. Records of other requestors read as not found.
func (uc *GetExecutionUsecase) Execute(ctx context.Context, requestorID string, id uuid.UUID) (*domain.ExecutionRecord, error) {
	rec, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrRecordNotFound) {
			uc.logger.Error("Failed to load execution record", zap.String("record_id", id.String()), zap.Error(err))
			return nil, err
		}
		uc.logger.Debug("Execution record not found", zap.String("record_id", id.String()))
		return nil, domain.ErrRecordNotFound
	}
	if rec.RequestorID != requestorID {
		return nil, domain.ErrRecordNotFound
	}
	return rec, nil
}

// List returns the requestor's newest records. limit is clamped to [1, 100].
func (uc *GetExecutionUsecase) List(ctx context.Context, requestorID string, limit int) ([]*domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	recs, err := uc.repo.ListByRequestor(ctx, requestorID, limit)
	if err != nil {
		uc.logger.Error("Failed to list execution records", zap.String("requestor_id", requestorID), zap.Error(err))
		return nil, err
	}
	return recs, nil
}
