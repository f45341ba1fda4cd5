package domain

import "time"

// ProviderKind distinguishes remote execution APIs from the client-side fallback.
type ProviderKind string

const (
	KindRemoteAPI  ProviderKind = "remote-api"
	KindClientSide ProviderKind = "client-side"
)

// IsValid checks if the kind is known.
func (k ProviderKind) IsValid() bool {
	return k == KindRemoteAPI || k == KindClientSide
}

// Adapter selects the wire shape a remote provider speaks.
type Adapter string

const (
	AdapterGeneric Adapter = "generic"
	AdapterPiston  Adapter = "piston"
	AdapterJudge0  Adapter = "judge0"
)

// IsValid checks if the adapter is known.
func (a Adapter) IsValid() bool {
	switch a {
	case AdapterGeneric, AdapterPiston, AdapterJudge0:
		return true
	}
	return false
}

// LanguageTarget maps a relay language key onto the provider's own naming.
type LanguageTarget struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version,omitempty"`
	ID      int    `yaml:"id" json:"id,omitempty"`
}

// RateLimit is a fixed window budget: at most MaxCalls per Window.
// A zero value means unlimited.
type RateLimit struct {
	Window   time.Duration `json:"window"`
	MaxCalls int           `json:"max_calls"`
}

// Unlimited reports whether the limit never rejects.
func (r RateLimit) Unlimited() bool {
	return r.Window <= 0 || r.MaxCalls <= 0
}

// Provider is an external code execution backend as configured at startup.
type Provider struct {
	ID        string                    `json:"id"`
	Priority  int                       `json:"priority"`
	Kind      ProviderKind              `json:"kind"`
	Adapter   Adapter                   `json:"adapter,omitempty"`
	BaseURL   string                    `json:"-"`
	APIKey    string                    `json:"-"`
	APIHeader string                    `json:"-"`
	Timeout   time.Duration             `json:"timeout"`
	RateLimit RateLimit                 `json:"rate_limit"`
	Languages map[string]LanguageTarget `json:"languages"`
}

// Supports reports whether the provider accepts the language key.
func (p Provider) Supports(language string) bool {
	_, ok := p.Languages[language]
	return ok
}

// IsClientSide reports whether the provider is the client-side delegate.
func (p Provider) IsClientSide() bool {
	return p.Kind == KindClientSide
}

// Target returns the provider's naming for language, defaulting the name to the key.
func (p Provider) Target(language string) LanguageTarget {
	t := p.Languages[language]
	if t.Name == "" {
		t.Name = language
	}
	return t
}

// ProviderHealthState is the health bookkeeping kept per provider.
type ProviderHealthState struct {
	ProviderID          string    `json:"provider_id"`
	IsHealthy           bool      `json:"is_healthy"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	UnhealthyUntil      time.Time `json:"unhealthy_until,omitempty"`
}

// HealthyAt reports whether the provider may be attempted at now.
func (s ProviderHealthState) HealthyAt(now time.Time) bool {
	return s.UnhealthyUntil.IsZero() || !now.Before(s.UnhealthyUntil)
}

// ProviderInfo is the public view of a provider plus its current health.
type ProviderInfo struct {
	ID        string              `json:"id"`
	Priority  int                 `json:"priority"`
	Kind      ProviderKind        `json:"kind"`
	Adapter   Adapter             `json:"adapter,omitempty"`
	Languages []string            `json:"languages"`
	TimeoutMs int64               `json:"timeout_ms"`
	RateLimit RateLimit           `json:"rate_limit"`
	Health    ProviderHealthState `json:"health"`
}
