package mock

import (
	"context"
	"sync"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/publisher"
)

// Ensure MockPublisher implements publisher.Publisher.
var _ publisher.Publisher = (*MockPublisher)(nil)

// MockPublisher is a mock record publisher for testing.
type MockPublisher struct {
	mu        sync.Mutex
	Published []*domain.ExecutionRecord
	PublishFn func(ctx context.Context, rec *domain.ExecutionRecord) error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, rec *domain.ExecutionRecord) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, rec)
	}
	m.mu.Lock()
	m.Published = append(m.Published, rec)
	m.mu.Unlock()
	return nil
}

// Records returns a copy of the published records.
func (m *MockPublisher) Records() []*domain.ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ExecutionRecord(nil), m.Published...)
}

func (m *MockPublisher) Close() error {
	return nil
}
