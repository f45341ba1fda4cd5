package registry_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/registry"
)

func remote(id string, priority int, langs ...string) domain.Provider {
	p := domain.Provider{
		ID:        id,
		Priority:  priority,
		Kind:      domain.KindRemoteAPI,
		Adapter:   domain.AdapterGeneric,
		BaseURL:   "http://" + id + ".invalid",
		Timeout:   time.Second,
		Languages: map[string]domain.LanguageTarget{},
	}
	for _, l := range langs {
		p.Languages[l] = domain.LanguageTarget{}
	}
	return p
}

func clientSide(id string, priority int, langs ...string) domain.Provider {
	p := domain.Provider{ID: id, Priority: priority, Kind: domain.KindClientSide, Languages: map[string]domain.LanguageTarget{}}
	for _, l := range langs {
		p.Languages[l] = domain.LanguageTarget{}
	}
	return p
}

func ids(ps []domain.Provider) string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return strings.Join(out, ",")
}

func TestRegistryOrdersByPriority(t *testing.T) {
	reg, err := registry.New([]domain.Provider{
		remote("c", 30, "python"),
		remote("a", 10, "python"),
		remote("b", 20, "python", "cpp"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := ids(reg.All()); got != "a,b,c" {
		t.Errorf("All() order = %s, want a,b,c", got)
	}
	if got := ids(reg.Eligible("python")); got != "a,b,c" {
		t.Errorf("Eligible(python) = %s, want a,b,c", got)
	}
	if got := ids(reg.Eligible("cpp")); got != "b" {
		t.Errorf("Eligible(cpp) = %s, want b", got)
	}
	if got := reg.Eligible("ruby"); len(got) != 0 {
		t.Errorf("Eligible(ruby) = %v, want empty", got)
	}
}

func TestRegistryClientSideAlwaysLast(t *testing.T) {
	reg, err := registry.New([]domain.Provider{
		clientSide("browser", 1, "python", "javascript"),
		remote("remote", 50, "python"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := ids(reg.Eligible("python")); got != "remote,browser" {
		t.Errorf("Eligible(python) = %s, want remote,browser", got)
	}
	if !reg.Supports("javascript") {
		t.Error("expected javascript to be supported through the client-side provider")
	}
}

func TestRegistryRejectsInvalidConfig(t *testing.T) {
	noURL := remote("x", 2, "python")
	noURL.BaseURL = ""
	noTimeout := remote("x", 2, "python")
	noTimeout.Timeout = 0
	badAdapter := remote("x", 2, "python")
	badAdapter.Adapter = "soap"
	judge0NoID := remote("j", 3, "python", "cpp")
	judge0NoID.Adapter = domain.AdapterJudge0
	judge0NoID.Languages["python"] = domain.LanguageTarget{ID: 71}

	tests := []struct {
		name      string
		providers []domain.Provider
		wantErr   string
	}{
		{"empty", nil, "no providers"},
		{"duplicate id", []domain.Provider{remote("x", 1, "python"), remote("x", 2, "python")}, "duplicate provider id"},
		{"duplicate priority", []domain.Provider{remote("x", 1, "python"), remote("y", 1, "python")}, "share priority"},
		{"no languages", []domain.Provider{remote("x", 1)}, "supports no languages"},
		{"missing base url", []domain.Provider{noURL}, "base_url"},
		{"missing timeout", []domain.Provider{noTimeout}, "timeout"},
		{"unknown adapter", []domain.Provider{badAdapter}, "unknown adapter"},
		{"judge0 without language id", []domain.Provider{judge0NoID}, `language "cpp" needs a judge0 id`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.New(tt.providers)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("New() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryIsImmutable(t *testing.T) {
	input := []domain.Provider{remote("a", 1, "python")}
	reg, err := registry.New(input)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	input[0].Languages["cpp"] = domain.LanguageTarget{}
	if reg.Supports("cpp") {
		t.Error("mutating the input slice changed the registry")
	}

	all := reg.All()
	all[0].ID = "mutated"
	if p, _ := reg.Get("a"); p.ID != "a" {
		t.Error("mutating All() changed the registry")
	}
}

func TestRegistryLanguages(t *testing.T) {
	reg, err := registry.New([]domain.Provider{
		remote("a", 1, "python", "cpp"),
		clientSide("browser", 2, "python"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	langs := reg.Languages()
	if len(langs) != 2 || langs[0].Name != "cpp" || langs[1].Name != "python" {
		t.Fatalf("Languages() = %+v, want cpp then python", langs)
	}
	if langs[0].ClientSide {
		t.Error("cpp should not report client-side support")
	}
	if !langs[1].ClientSide || strings.Join(langs[1].Providers, ",") != "a,browser" {
		t.Errorf("python info = %+v", langs[1])
	}
}

func TestParseYAML(t *testing.T) {
	t.Setenv("TEST_PISTON_KEY", "secret")

	data := []byte(`
providers:
  - id: piston
    priority: 10
    adapter: piston
    base_url: http://piston.local/api/v2
    api_key_env: TEST_PISTON_KEY
    timeout_ms: 8000
    rate_limit:
      window: 1m
      max_calls: 60
    languages:
      python: {name: python, version: "3.10.0"}
  - id: judge0
    priority: 20
    adapter: judge0
    base_url: http://judge0.local
    timeout_ms: 5000
    languages:
      python: {id: 71}
  - id: browser
    priority: 99
    kind: client-side
    languages:
      python: {}
`)

	reg, err := registry.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := ids(reg.Eligible("python")); got != "piston,judge0,browser" {
		t.Errorf("Eligible(python) = %s", got)
	}

	p, ok := reg.Get("piston")
	if !ok {
		t.Fatal("piston not registered")
	}
	if p.Kind != domain.KindRemoteAPI {
		t.Errorf("kind defaulted to %q, want remote-api", p.Kind)
	}
	if p.Timeout != 8*time.Second {
		t.Errorf("timeout = %v, want 8s", p.Timeout)
	}
	if p.RateLimit.Window != time.Minute || p.RateLimit.MaxCalls != 60 {
		t.Errorf("rate limit = %+v", p.RateLimit)
	}
	if p.APIKey != "secret" {
		t.Errorf("api key not resolved from env")
	}
	if tgt := p.Target("python"); tgt.Version != "3.10.0" {
		t.Errorf("target = %+v", tgt)
	}

	j, _ := reg.Get("judge0")
	if j.Target("python").ID != 71 || j.Target("python").Name != "python" {
		t.Errorf("judge0 target = %+v", j.Target("python"))
	}
}

func TestParseYAMLBadWindow(t *testing.T) {
	_, err := registry.Parse([]byte(`
providers:
  - id: x
    priority: 1
    base_url: http://x
    timeout_ms: 100
    rate_limit: {window: soon, max_calls: 1}
    languages: {python: {}}
`))
	if err == nil || !strings.Contains(err.Error(), "rate_limit.window") {
		t.Fatalf("Parse() error = %v, want rate_limit.window error", err)
	}
}
