package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/repository"
)

const abandonTimeout = 2 * time.Second

// ErrInvalidRecord is returned for records that can never be stored.
var ErrInvalidRecord = errors.New("invalid execution record")

// RecordExecutionUsecase persists execution records delivered by the broker.
type RecordExecutionUsecase struct {
	repo       repository.ExecutionRecordRepository
	idempotent repository.IdempotencyStore
	logger     *zap.Logger
}

// NewRecordExecutionUsecase creates a new RecordExecutionUsecase.
func NewRecordExecutionUsecase(
	repo repository.ExecutionRecordRepository,
	idempotent repository.IdempotencyStore,
	logger *zap.Logger,
) *RecordExecutionUsecase {
	return &RecordExecutionUsecase{
		repo:       repo,
		idempotent: idempotent,
		logger:     logger,
	}
}

// Execute stores one record: idempotency check → insert → release lock.
// Returns (isDuplicate, error).
func (uc *RecordExecutionUsecase) Execute(ctx context.Context, rec *domain.ExecutionRecord) (bool, error) {
	if rec == nil || rec.RecordID == uuid.Nil || rec.RequestorID == "" || !rec.Status.IsTerminal() {
		return false, ErrInvalidRecord
	}
	log := uc.logger.With(zap.String("record_id", rec.RecordID.String()))

	// Step 1: Idempotency check
	acquired, err := uc.idempotent.AcquireLock(ctx, rec.RecordID)
	if err != nil {
		log.Error("Failed to acquire idempotency lock", zap.Error(err))
		return false, err
	}
	if !acquired {
		log.Info("Duplicate message detected, skipping")
		return true, nil
	}

	// Step 2: Insert; a conflicting primary key means an earlier delivery already landed.
	inserted, err := uc.repo.Insert(ctx, rec)
	if err != nil {
		log.Error("Failed to store execution record", zap.Error(err))
		uc.abandon(ctx, rec.RecordID, log)
		return false, fmt.Errorf("store record: %w", err)
	}

	// Step 3: Release idempotency lock (set TTL for eventual cleanup)
	_ = uc.idempotent.ReleaseLock(ctx, rec.RecordID)

	if !inserted {
		log.Info("Record already stored, skipping")
		return true, nil
	}

	log.Info("Execution record stored",
		zap.String("request_id", rec.RequestID),
		zap.String("status", string(rec.Status)),
		zap.String("provider_id", providerOrEmpty(rec.ProviderUsed)),
	)
	return false, nil
}

// abandon drops the lock so the nacked delivery is not mistaken for a duplicate.
// It runs detached from ctx, which is already cancelled on shutdown.
func (uc *RecordExecutionUsecase) abandon(ctx context.Context, id uuid.UUID, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
	defer cancel()
	if err := uc.idempotent.AbandonLock(ctx, id); err != nil {
		log.Warn("Failed to abandon idempotency lock", zap.Error(err))
	}
}

func providerOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
