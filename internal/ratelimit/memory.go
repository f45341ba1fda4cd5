package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

var _ Store = (*MemoryStore)(nil)

// windowEntry tracks admitted calls in the current window of one key.
type windowEntry struct {
	start  time.Time
	length time.Duration
	count  int
}

func (e *windowEntry) expired(now time.Time) bool {
	return !now.Before(e.start.Add(e.length))
}

// MemoryStore keeps windows in process memory. Suitable for single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*windowEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*windowEntry)}
}

func (s *MemoryStore) Take(_ context.Context, key string, limit domain.RateLimit, now time.Time) (Window, bool, error) {
	start := windowStart(now, limit.Window)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.windows[key]
	if !exists || !entry.start.Equal(start) || entry.length != limit.Window {
		// New window
		entry = &windowEntry{start: start, length: limit.Window}
		s.windows[key] = entry
	}

	if entry.count >= limit.MaxCalls {
		return Window{Key: key, WindowStart: entry.start, Count: entry.count}, false, nil
	}

	entry.count++
	return Window{Key: key, WindowStart: entry.start, Count: entry.count}, true, nil
}

// Prune drops every window that has ended at now and returns how many were removed.
func (s *MemoryStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.windows {
		if entry.expired(now) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// DefaultJanitorInterval is used when StartJanitor gets a non-positive interval.
const DefaultJanitorInterval = time.Minute

// StartJanitor prunes expired windows every interval until ctx is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Prune(now)
			}
		}
	}()
}
