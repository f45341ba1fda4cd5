package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/metrics"
)

type cachedState struct {
	state     domain.ProviderHealthState
	fetchedAt time.Time
	gen       uint64
}

// Probe answers "may this provider be attempted now" from a local cache
// backed by a Store. Store errors are logged and the provider is treated
// according to the last state this instance knew about.
type Probe struct {
	store  Store
	policy Policy
	now    func() time.Time
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedState
	gen   uint64
}

// NewProbe creates a Probe over store.
func NewProbe(store Store, policy Policy, logger *zap.Logger) *Probe {
	return &Probe{
		store:  store,
		policy: policy,
		now:    time.Now,
		logger: logger,
		cache:  make(map[string]cachedState),
	}
}

// WithClock replaces the wall clock, for tests.
func (p *Probe) WithClock(now func() time.Time) *Probe {
	p.now = now
	return p
}

// Healthy reports whether providerID is outside any cooldown.
func (p *Probe) Healthy(ctx context.Context, providerID string) bool {
	return p.State(ctx, providerID).IsHealthy
}

// State returns the provider's health as of now. A cooldown that has elapsed
// reads as healthy even while the cached entry is still fresh.
func (p *Probe) State(ctx context.Context, providerID string) domain.ProviderHealthState {
	now := p.now()

	p.mu.RLock()
	c, ok := p.cache[providerID]
	p.mu.RUnlock()

	if !ok || now.Sub(c.fetchedAt) >= p.policy.CacheTTL {
		st, err := p.store.Load(ctx, providerID)
		if err != nil {
			p.logger.Warn("Health store unavailable, using cached state",
				zap.String("provider", providerID),
				zap.Error(err),
			)
			if !ok {
				c.state = domain.ProviderHealthState{ProviderID: providerID}
			}
		} else {
			c = p.refresh(providerID, st, now, c.gen)
		}
	}

	st := c.state
	st.ProviderID = providerID
	st.IsHealthy = st.HealthyAt(now)
	return st
}

// RecordFailure counts one failed invocation and may open a cooldown.
func (p *Probe) RecordFailure(ctx context.Context, providerID string, kind domain.ErrorKind) domain.ProviderHealthState {
	now := p.now()

	st, err := p.store.RecordFailure(ctx, providerID, p.policy, now)
	if err != nil {
		p.logger.Warn("Failed to record provider failure",
			zap.String("provider", providerID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return p.State(ctx, providerID)
	}

	p.remember(providerID, st, now)
	st.IsHealthy = st.HealthyAt(now)

	if !st.IsHealthy {
		p.logger.Warn("Provider marked unhealthy",
			zap.String("provider", providerID),
			zap.String("kind", string(kind)),
			zap.Int("consecutive_failures", st.ConsecutiveFailures),
			zap.Time("unhealthy_until", st.UnhealthyUntil),
		)
	}
	return st
}

// RecordSuccess clears the failure streak and any cooldown.
func (p *Probe) RecordSuccess(ctx context.Context, providerID string) {
	now := p.now()

	st, err := p.store.RecordSuccess(ctx, providerID)
	if err != nil {
		p.logger.Warn("Failed to record provider success",
			zap.String("provider", providerID),
			zap.Error(err),
		)
		st = domain.ProviderHealthState{ProviderID: providerID}
	}
	p.remember(providerID, st, now)
}

// Snapshot returns the current state of each provider in ids.
func (p *Probe) Snapshot(ctx context.Context, ids []string) map[string]domain.ProviderHealthState {
	out := make(map[string]domain.ProviderHealthState, len(ids))
	for _, id := range ids {
		out[id] = p.State(ctx, id)
	}
	return out
}

// remember stores the outcome of a health mutation.
func (p *Probe) remember(providerID string, st domain.ProviderHealthState, now time.Time) {
	p.mu.Lock()
	p.gen++
	p.cache[providerID] = cachedState{state: st, fetchedAt: now, gen: p.gen}
	p.mu.Unlock()
	p.publish(providerID, st, now)
}

// refresh stores a state loaded from the store unless a mutation was
// remembered after seenGen was read, in which case the newer entry wins.
func (p *Probe) refresh(providerID string, st domain.ProviderHealthState, now time.Time, seenGen uint64) cachedState {
	p.mu.Lock()
	if cur, ok := p.cache[providerID]; ok && cur.gen != seenGen {
		p.mu.Unlock()
		return cur
	}
	p.gen++
	c := cachedState{state: st, fetchedAt: now, gen: p.gen}
	p.cache[providerID] = c
	p.mu.Unlock()
	p.publish(providerID, st, now)
	return c
}

func (p *Probe) publish(providerID string, st domain.ProviderHealthState, now time.Time) {
	healthy := 0.0
	if st.HealthyAt(now) {
		healthy = 1
	}
	metrics.ProviderHealthy.WithLabelValues(providerID).Set(healthy)
}
