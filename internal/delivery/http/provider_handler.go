package http

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

// ProviderLister lists configured providers in dispatch order.
type ProviderLister interface {
	All() []domain.Provider
}

// HealthSnapshotter reports current provider health without probing.
type HealthSnapshotter interface {
	Snapshot(ctx context.Context, ids []string) map[string]domain.ProviderHealthState
}

// ProviderHandler exposes the provider registry with live health.
type ProviderHandler struct {
	providers ProviderLister
	health    HealthSnapshotter
}

// NewProviderHandler creates a new ProviderHandler.
func NewProviderHandler(providers ProviderLister, health HealthSnapshotter) *ProviderHandler {
	return &ProviderHandler{providers: providers, health: health}
}

// List handles GET /api/v1/providers
func (h *ProviderHandler) List(c *gin.Context) {
	all := h.providers.All()
	ids := make([]string, len(all))
	for i, p := range all {
		ids[i] = p.ID
	}
	states := h.health.Snapshot(c.Request.Context(), ids)

	infos := make([]domain.ProviderInfo, 0, len(all))
	for _, p := range all {
		langs := make([]string, 0, len(p.Languages))
		for l := range p.Languages {
			langs = append(langs, l)
		}
		sort.Strings(langs)

		st, ok := states[p.ID]
		if !ok {
			st = domain.ProviderHealthState{ProviderID: p.ID, IsHealthy: true}
		}

		infos = append(infos, domain.ProviderInfo{
			ID:        p.ID,
			Priority:  p.Priority,
			Kind:      p.Kind,
			Adapter:   p.Adapter,
			Languages: langs,
			TimeoutMs: p.Timeout.Milliseconds(),
			RateLimit: p.RateLimit,
			Health:    st,
		})
	}

	c.JSON(http.StatusOK, gin.H{"providers": infos})
}
