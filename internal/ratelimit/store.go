// Package ratelimit implements fixed, wall-clock aligned request windows with
// an atomic increment-and-check per key. Two scopes share one store: one key
// per requestor and one key per provider.
package ratelimit

import (
	"context"
	"time"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

// Window is the counter state for one scope key.
type Window struct {
	Key         string
	WindowStart time.Time
	Count       int
}

// Store is a keyed counter store. Take must be atomic per key: concurrent
// callers for the same key can never both be admitted past the limit.
type Store interface {
	// Take admits one call for key in the window containing now, or reports
	// that the window is full. Rejected calls do not consume budget.
	Take(ctx context.Context, key string, limit domain.RateLimit, now time.Time) (Window, bool, error)
}

// windowStart aligns now to the start of its window so that every instance
// resets at the same wall-clock instant.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}
