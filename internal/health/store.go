// Package health tracks per-provider up/down state. Failures accumulate until a
// threshold opens an exponentially growing cooldown; any success clears it.
// Reads are served from a TTL cache and never probe a provider synchronously.
package health

import (
	"context"
	"time"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

// Policy configures failure accounting.
type Policy struct {
	FailureThreshold int
	BaseCooldown     time.Duration
	MaxCooldown      time.Duration
	CacheTTL         time.Duration
}

// DefaultPolicy returns threshold 3, cooldown 15s doubling up to 5m, cache TTL 30s.
func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold: 3,
		BaseCooldown:     15 * time.Second,
		MaxCooldown:      5 * time.Minute,
		CacheTTL:         30 * time.Second,
	}
}

// Cooldown returns how long a provider with the given consecutive failure
// count stays unhealthy. Zero means it is not yet past the threshold.
func (p Policy) Cooldown(failures int) time.Duration {
	if failures < p.FailureThreshold {
		return 0
	}
	d := p.BaseCooldown
	for i := p.FailureThreshold; i < failures; i++ {
		d *= 2
		if d >= p.MaxCooldown {
			return p.MaxCooldown
		}
	}
	if d > p.MaxCooldown {
		return p.MaxCooldown
	}
	return d
}

// Store persists health state. RecordFailure and RecordSuccess must be atomic per provider.
type Store interface {
	Load(ctx context.Context, providerID string) (domain.ProviderHealthState, error)
	RecordFailure(ctx context.Context, providerID string, policy Policy, now time.Time) (domain.ProviderHealthState, error)
	RecordSuccess(ctx context.Context, providerID string) (domain.ProviderHealthState, error)
}
