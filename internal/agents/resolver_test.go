package agents

import (
	"strings"
	"testing"

	"github.com/wayfarelabs/faregate/internal/catalog"
	"github.com/wayfarelabs/faregate/internal/settings"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	reg, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load failed: %v", err)
	}
	return NewResolver(reg)
}

func TestResolveRoleDefaults(t *testing.T) {
	r := newTestResolver(t)

	cfg := r.Resolve("receipt", nil)
	if cfg.ModelID != "anthropic/claude-3.5-sonnet" {
		t.Errorf("receipt model = %q, want claude-3.5-sonnet", cfg.ModelID)
	}
	if cfg.MaxTokens != 1024 {
		t.Errorf("receipt maxTokens = %d, want 1024", cfg.MaxTokens)
	}
	if cfg.Temperature != DefaultTemperature {
		t.Errorf("temperature = %v, want %v", cfg.Temperature, DefaultTemperature)
	}
	if !cfg.EnableFallback {
		t.Error("expected fallback enabled by default")
	}
	if cfg.FallbackOrder != nil {
		t.Errorf("expected no fallback order by default, got %v", cfg.FallbackOrder)
	}
}

func TestResolveAlwaysReturnsKnownModel(t *testing.T) {
	r := newTestResolver(t)

	roles := append(catalog.Roles(), "completely-unknown-role")
	for _, role := range roles {
		cfg := r.Resolve(role, nil)
		if _, ok := r.registry.Get(cfg.ModelID); !ok {
			t.Errorf("role %q resolved to unknown model %q", role, cfg.ModelID)
		}
	}
}

func TestResolveLayerPrecedence(t *testing.T) {
	r := newTestResolver(t)

	ts := &settings.TenantSettings{
		Defaults: &settings.AgentSettings{
			ModelID:     settings.Ptr("openai/gpt-4o"),
			Temperature: settings.Ptr(0.2),
		},
		Agents: map[string]*settings.AgentSettings{
			"settlement": {
				ModelID: settings.Ptr("anthropic/claude-3.5-haiku"),
			},
		},
	}

	// Most specific layer wins for the field it sets.
	cfg := r.Resolve("settlement", ts)
	if cfg.ModelID != "anthropic/claude-3.5-haiku" {
		t.Errorf("settlement model = %q, want agent override", cfg.ModelID)
	}
	// Fields the override leaves unset fall through to tenant defaults.
	if cfg.Temperature != 0.2 {
		t.Errorf("settlement temperature = %v, want tenant default 0.2", cfg.Temperature)
	}
	// And unset-everywhere fields fall through to role defaults.
	if cfg.MaxTokens != 1024 {
		t.Errorf("settlement maxTokens = %d, want role default 1024", cfg.MaxTokens)
	}

	// A role with no override picks up tenant defaults directly.
	cfg = r.Resolve("categorize", ts)
	if cfg.ModelID != "openai/gpt-4o" {
		t.Errorf("categorize model = %q, want tenant default", cfg.ModelID)
	}
}

func TestResolveExplicitZeroAndFalse(t *testing.T) {
	r := newTestResolver(t)

	ts := &settings.TenantSettings{
		Agents: map[string]*settings.AgentSettings{
			"concierge": {
				Temperature:    settings.Ptr(0.0),
				EnableFallback: settings.Ptr(false),
			},
		},
	}

	cfg := r.Resolve("concierge", ts)
	if cfg.Temperature != 0 {
		t.Errorf("explicit zero temperature lost: got %v", cfg.Temperature)
	}
	if cfg.EnableFallback {
		t.Error("explicit enableFallback=false lost")
	}
}

func TestResolveUnknownModelSilentlyCorrected(t *testing.T) {
	r := newTestResolver(t)

	ts := &settings.TenantSettings{
		Defaults: &settings.AgentSettings{
			ModelID: settings.Ptr("vendor/does-not-exist"),
		},
	}

	cfg := r.Resolve("receipt", ts)
	if cfg.ModelID != "anthropic/claude-3.5-sonnet" {
		t.Errorf("unknown model should fall back to role default, got %q", cfg.ModelID)
	}
}

func TestResolveFallbackOrderOnlyFromRoleLayer(t *testing.T) {
	r := newTestResolver(t)

	ts := &settings.TenantSettings{
		Defaults: &settings.AgentSettings{
			FallbackOrder: []string{"openai/gpt-4o"},
		},
		Agents: map[string]*settings.AgentSettings{
			"receipt": {
				FallbackOrder: []string{"anthropic/claude-3-haiku", "openai/gpt-4o-mini"},
			},
		},
	}

	// Tenant-wide defaults never contribute a fallback order.
	cfg := r.Resolve("settlement", ts)
	if cfg.FallbackOrder != nil {
		t.Errorf("defaults layer leaked fallbackOrder: %v", cfg.FallbackOrder)
	}

	cfg = r.Resolve("receipt", ts)
	if len(cfg.FallbackOrder) != 2 || cfg.FallbackOrder[0] != "anthropic/claude-3-haiku" {
		t.Errorf("role fallbackOrder wrong: %v", cfg.FallbackOrder)
	}
}

func TestValidateSettings(t *testing.T) {
	r := newTestResolver(t)

	if got := r.ValidateSettings(nil); got != nil {
		t.Errorf("nil settings should validate clean, got %v", got)
	}

	ts := &settings.TenantSettings{
		Defaults: &settings.AgentSettings{
			ModelID:     settings.Ptr("vendor/ghost"),
			Temperature: settings.Ptr(2.5),
		},
		Agents: map[string]*settings.AgentSettings{
			"receipt": {
				MaxTokens:     settings.Ptr(0),
				FallbackOrder: []string{"openai/gpt-4o", "vendor/phantom"},
			},
			"settlement": {
				Temperature: settings.Ptr(-0.1),
			},
		},
	}

	problems := r.ValidateSettings(ts)
	if len(problems) != 5 {
		t.Fatalf("expected 5 violations, got %d: %v", len(problems), problems)
	}

	wantSubstrings := []string{
		`defaults: unknown model "vendor/ghost"`,
		"defaults: temperature 2.5 out of range",
		`agent "receipt": maxTokens 0 out of range`,
		`agent "receipt": fallback model "vendor/phantom" not in catalog`,
	}
	for _, want := range wantSubstrings {
		found := false
		for _, p := range problems {
			if strings.Contains(p, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing violation containing %q in %v", want, problems)
		}
	}

	// settlement temperature violation must also be present.
	found := false
	for _, p := range problems {
		if strings.Contains(p, `agent "settlement": temperature`) {
			found = true
		}
	}
	if !found {
		t.Errorf("missing settlement temperature violation in %v", problems)
	}
}

func TestValidateSettingsClean(t *testing.T) {
	r := newTestResolver(t)

	ts := &settings.TenantSettings{
		Defaults: &settings.AgentSettings{
			ModelID:     settings.Ptr("openai/gpt-4o-mini"),
			Temperature: settings.Ptr(0.0),
			MaxTokens:   settings.Ptr(100000),
		},
		Agents: map[string]*settings.AgentSettings{
			"receipt": {
				FallbackOrder: []string{"anthropic/claude-3-haiku"},
			},
		},
	}

	if problems := r.ValidateSettings(ts); len(problems) != 0 {
		t.Errorf("expected clean validation, got %v", problems)
	}
}
