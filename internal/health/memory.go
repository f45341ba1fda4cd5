package health

import (
	"context"
	"sync"
	"time"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore holds health state in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]domain.ProviderHealthState
}

// NewMemoryStore creates an empty in-memory health store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]domain.ProviderHealthState)}
}

func (s *MemoryStore) Load(_ context.Context, providerID string) (domain.ProviderHealthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[providerID]
	if !ok {
		st = domain.ProviderHealthState{ProviderID: providerID}
	}
	return st, nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, providerID string, policy Policy, now time.Time) (domain.ProviderHealthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.states[providerID]
	st.ProviderID = providerID
	st.ConsecutiveFailures++
	if cd := policy.Cooldown(st.ConsecutiveFailures); cd > 0 {
		if until := now.Add(cd); until.After(st.UnhealthyUntil) {
			st.UnhealthyUntil = until
		}
	}
	s.states[providerID] = st
	return st, nil
}

func (s *MemoryStore) RecordSuccess(_ context.Context, providerID string) (domain.ProviderHealthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, providerID)
	return domain.ProviderHealthState{ProviderID: providerID, IsHealthy: true}, nil
}
