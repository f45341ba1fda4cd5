package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

type fileConfig struct {
	Providers []providerEntry `yaml:"providers"`
}

type providerEntry struct {
	ID        string                           `yaml:"id"`
	Priority  int                              `yaml:"priority"`
	Kind      string                           `yaml:"kind"`
	Adapter   string                           `yaml:"adapter"`
	BaseURL   string                           `yaml:"base_url"`
	APIKeyEnv string                           `yaml:"api_key_env"`
	APIHeader string                           `yaml:"api_header"`
	TimeoutMs int                              `yaml:"timeout_ms"`
	RateLimit rateLimitEntry                   `yaml:"rate_limit"`
	Languages map[string]domain.LanguageTarget `yaml:"languages"`
}

type rateLimitEntry struct {
	Window   string `yaml:"window"`
	MaxCalls int    `yaml:"max_calls"`
}

// Load reads a YAML provider file and builds the registry from it.
// API keys are never stored in the file; api_key_env names the variable holding one.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds the registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("registry: parse yaml: %w", err)
	}

	providers := make([]domain.Provider, 0, len(fc.Providers))
	for _, e := range fc.Providers {
		p, err := e.toProvider()
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return New(providers)
}

func (e providerEntry) toProvider() (domain.Provider, error) {
	p := domain.Provider{
		ID:        e.ID,
		Priority:  e.Priority,
		Kind:      domain.ProviderKind(e.Kind),
		Adapter:   domain.Adapter(e.Adapter),
		BaseURL:   e.BaseURL,
		APIHeader: e.APIHeader,
		Timeout:   time.Duration(e.TimeoutMs) * time.Millisecond,
		Languages: e.Languages,
	}
	if p.Kind == "" {
		p.Kind = domain.KindRemoteAPI
	}
	if p.Kind == domain.KindRemoteAPI && p.Adapter == "" {
		p.Adapter = domain.AdapterGeneric
	}
	if e.APIKeyEnv != "" {
		p.APIKey = os.Getenv(e.APIKeyEnv)
	}

	if e.RateLimit.Window != "" {
		w, err := time.ParseDuration(e.RateLimit.Window)
		if err != nil {
			return domain.Provider{}, fmt.Errorf("registry: provider %q: rate_limit.window: %w", e.ID, err)
		}
		p.RateLimit = domain.RateLimit{Window: w, MaxCalls: e.RateLimit.MaxCalls}
	}
	return p, nil
}
