package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/repository"
)

// ---- ExecutionRecordRepository mock ----

var _ repository.ExecutionRecordRepository = (*RecordRepository)(nil)

// RecordRepository is an in-memory test double for repository.ExecutionRecordRepository.
type RecordRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.ExecutionRecord

	InsertFn  func(ctx context.Context, rec *domain.ExecutionRecord) (bool, error)
	GetByIDFn func(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error)

	// Recorded calls for assertions.
	Inserted []*domain.ExecutionRecord
}

// NewRecordRepository creates an empty mock repository.
func NewRecordRepository() *RecordRepository {
	return &RecordRepository{records: make(map[uuid.UUID]*domain.ExecutionRecord)}
}

func (m *RecordRepository) Insert(ctx context.Context, rec *domain.ExecutionRecord) (bool, error) {
	m.mu.Lock()
	m.Inserted = append(m.Inserted, rec)
	m.mu.Unlock()
	if m.InsertFn != nil {
		return m.InsertFn(ctx, rec)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[uuid.UUID]*domain.ExecutionRecord)
	}
	if _, exists := m.records[rec.RecordID]; exists {
		return false, nil
	}
	m.records[rec.RecordID] = rec
	return true, nil
}

func (m *RecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return rec, nil
}

func (m *RecordRepository) ListByRequestor(_ context.Context, requestorID string, limit int) ([]*domain.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.ExecutionRecord
	for _, rec := range m.records {
		if rec.RequestorID == requestorID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- IdempotencyStore mock ----

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore is a test double for repository.IdempotencyStore.
type IdempotencyStore struct {
	mu sync.Mutex

	AcquireLockFn func(ctx context.Context, recordID uuid.UUID) (bool, error)
	ReleaseLockFn func(ctx context.Context, recordID uuid.UUID) error
	AbandonLockFn func(ctx context.Context, recordID uuid.UUID) error

	AcquireCalls []uuid.UUID
	ReleaseCalls []uuid.UUID
	AbandonCalls []uuid.UUID
}

func (m *IdempotencyStore) AcquireLock(ctx context.Context, recordID uuid.UUID) (bool, error) {
	m.mu.Lock()
	m.AcquireCalls = append(m.AcquireCalls, recordID)
	m.mu.Unlock()
	if m.AcquireLockFn != nil {
		return m.AcquireLockFn(ctx, recordID)
	}
	return true, nil // default: lock acquired
}

func (m *IdempotencyStore) ReleaseLock(ctx context.Context, recordID uuid.UUID) error {
	m.mu.Lock()
	m.ReleaseCalls = append(m.ReleaseCalls, recordID)
	m.mu.Unlock()
	if m.ReleaseLockFn != nil {
		return m.ReleaseLockFn(ctx, recordID)
	}
	return nil
}

func (m *IdempotencyStore) AbandonLock(ctx context.Context, recordID uuid.UUID) error {
	m.mu.Lock()
	m.AbandonCalls = append(m.AbandonCalls, recordID)
	m.mu.Unlock()
	if m.AbandonLockFn != nil {
		return m.AbandonLockFn(ctx, recordID)
	}
	return nil
}
