package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

// ExecutionRecordRepository persists execution audit records.
// Implementations must be safe for concurrent use.
type ExecutionRecordRepository interface {
	// Insert stores a record. It returns false when a record with the same
	// id already exists, which callers treat as a redelivery.
	Insert(ctx context.Context, rec *domain.ExecutionRecord) (bool, error)

	// GetByID retrieves a record by its UUID, or domain.ErrRecordNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error)

	// ListByRequestor returns the newest records of one requestor, newest first.
	ListByRequestor(ctx context.Context, requestorID string, limit int) ([]*domain.ExecutionRecord, error)
}

// IdempotencyStore defines the interface for distributed deduplication locks.
type IdempotencyStore interface {
	// AcquireLock attempts to acquire an exclusive processing lock for a record.
	// Returns true if the lock was acquired (first time), false if already locked (duplicate).
	AcquireLock(ctx context.Context, recordID uuid.UUID) (bool, error)

	// ReleaseLock releases the processing lock with a TTL for eventual cleanup.
	ReleaseLock(ctx context.Context, recordID uuid.UUID) error

	// AbandonLock deletes the lock so a redelivery of an unstored record is processed.
	AbandonLock(ctx context.Context, recordID uuid.UUID) error
}
