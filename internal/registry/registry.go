// Package registry holds the immutable, startup-loaded list of execution
// providers and answers which of them may serve a language, in priority order.
package registry

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

// Registry is read-only after New returns; it is safe for concurrent use
// without locking. Reconfiguration requires a process restart.
type Registry struct {
	providers []domain.Provider
	byID      map[string]int
	byLang    map[string][]int
}

// New validates providers and orders them: remote providers by ascending
// priority, then client-side providers by ascending priority.
func New(providers []domain.Provider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("registry: no providers configured")
	}

	ids := make(map[string]bool, len(providers))
	priorities := make(map[int]string, len(providers))
	ordered := make([]domain.Provider, 0, len(providers))

	for _, p := range providers {
		if err := validateProvider(p); err != nil {
			return nil, err
		}
		if ids[p.ID] {
			return nil, fmt.Errorf("registry: duplicate provider id %q", p.ID)
		}
		if other, ok := priorities[p.Priority]; ok {
			return nil, fmt.Errorf("registry: providers %q and %q share priority %d", other, p.ID, p.Priority)
		}
		ids[p.ID] = true
		priorities[p.Priority] = p.ID

		p.Languages = maps.Clone(p.Languages)
		ordered = append(ordered, p)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.IsClientSide() != b.IsClientSide() {
			return !a.IsClientSide()
		}
		return a.Priority < b.Priority
	})

	r := &Registry{
		providers: ordered,
		byID:      make(map[string]int, len(ordered)),
		byLang:    make(map[string][]int),
	}
	for i, p := range ordered {
		r.byID[p.ID] = i
		for lang := range p.Languages {
			r.byLang[lang] = append(r.byLang[lang], i)
		}
	}
	return r, nil
}

func validateProvider(p domain.Provider) error {
	if p.ID == "" {
		return fmt.Errorf("registry: provider with empty id")
	}
	if !p.Kind.IsValid() {
		return fmt.Errorf("registry: provider %q: unknown kind %q", p.ID, p.Kind)
	}
	if len(p.Languages) == 0 {
		return fmt.Errorf("registry: provider %q supports no languages", p.ID)
	}
	if p.Kind == domain.KindRemoteAPI {
		if !p.Adapter.IsValid() {
			return fmt.Errorf("registry: provider %q: unknown adapter %q", p.ID, p.Adapter)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("registry: provider %q: base_url is required", p.ID)
		}
		if p.Timeout <= 0 {
			return fmt.Errorf("registry: provider %q: timeout must be positive", p.ID)
		}
		if p.Adapter == domain.AdapterJudge0 {
			for _, lang := range slices.Sorted(maps.Keys(p.Languages)) {
				if p.Languages[lang].ID <= 0 {
					return fmt.Errorf("registry: provider %q: language %q needs a judge0 id", p.ID, lang)
				}
			}
		}
	}
	return nil
}

// All returns every provider in dispatch order.
func (r *Registry) All() []domain.Provider {
	out := make([]domain.Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Get returns the provider with the given id.
func (r *Registry) Get(id string) (domain.Provider, bool) {
	i, ok := r.byID[id]
	if !ok {
		return domain.Provider{}, false
	}
	return r.providers[i], true
}

// Eligible returns the providers supporting language, in dispatch order.
func (r *Registry) Eligible(language string) []domain.Provider {
	idx := r.byLang[language]
	out := make([]domain.Provider, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.providers[i])
	}
	return out
}

// Supports reports whether any provider accepts the language.
func (r *Registry) Supports(language string) bool {
	return len(r.byLang[language]) > 0
}

// Languages lists every supported language, sorted by name for a stable API response.
func (r *Registry) Languages() []domain.LanguageInfo {
	infos := make([]domain.LanguageInfo, 0, len(r.byLang))
	for lang, idx := range r.byLang {
		info := domain.LanguageInfo{Name: lang, Providers: make([]string, 0, len(idx))}
		for _, i := range idx {
			p := r.providers[i]
			info.Providers = append(info.Providers, p.ID)
			if p.IsClientSide() {
				info.ClientSide = true
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
