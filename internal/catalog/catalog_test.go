package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return r
}

func TestGetKnownAndUnknown(t *testing.T) {
	r := loadTestRegistry(t)

	m, ok := r.Get("anthropic/claude-3.5-sonnet")
	if !ok {
		t.Fatal("expected claude-3.5-sonnet to be in the catalog")
	}
	if m.Provider != ProviderAnthropic {
		t.Errorf("provider mismatch: got %q, want %q", m.Provider, ProviderAnthropic)
	}
	if !m.Capabilities.Vision {
		t.Error("expected claude-3.5-sonnet to have vision")
	}

	if _, ok := r.Get("nope/not-a-model"); ok {
		t.Error("expected unknown id to return ok=false")
	}
}

func TestCostKnownModels(t *testing.T) {
	r := loadTestRegistry(t)

	for _, m := range r.All() {
		if got := r.Cost(m.ID, 0, 0); got != 0 {
			t.Errorf("%s: cost(0,0) = %v, want 0", m.ID, got)
		}
		want := m.Pricing.InputPer1k + m.Pricing.OutputPer1k
		if got := r.Cost(m.ID, 1000, 1000); got != want {
			t.Errorf("%s: cost(1000,1000) = %v, want %v", m.ID, got, want)
		}
	}
}

func TestCostUnknownModel(t *testing.T) {
	r := loadTestRegistry(t)

	if got := r.Cost("unknown/model", 5000, 5000); got != 0 {
		t.Errorf("cost for unknown model = %v, want 0", got)
	}
}

func TestCheapest(t *testing.T) {
	r := loadTestRegistry(t)

	tests := []struct {
		taskType TaskType
		want     string
	}{
		{TaskSimple, "google/gemini-1.5-flash"},
		{TaskBalanced, "meta-llama/llama-3.1-70b-instruct"},
		{TaskComplex, "mistralai/mistral-large"},
		// Unknown task type falls back to the global cheapest.
		{TaskType("imaginary"), "google/gemini-1.5-flash"},
	}

	for _, tt := range tests {
		t.Run(string(tt.taskType), func(t *testing.T) {
			got := r.Cheapest(tt.taskType)
			if got.ID != tt.want {
				t.Errorf("Cheapest(%q) = %q, want %q", tt.taskType, got.ID, tt.want)
			}
		})
	}
}

func TestListByProvider(t *testing.T) {
	r := loadTestRegistry(t)

	models := r.ListByProvider(ProviderAnthropic)
	if len(models) != 4 {
		t.Fatalf("expected 4 anthropic models, got %d", len(models))
	}
	// Catalog declaration order must be preserved.
	if models[0].ID != "anthropic/claude-3.5-sonnet" {
		t.Errorf("first anthropic model = %q, want claude-3.5-sonnet", models[0].ID)
	}

	if got := r.ListByProvider(Provider("unknown")); len(got) != 0 {
		t.Errorf("expected no models for unknown provider, got %d", len(got))
	}
}

func TestListWithCapability(t *testing.T) {
	r := loadTestRegistry(t)

	for _, m := range r.ListWithCapability(CapVision) {
		if !m.Capabilities.Vision {
			t.Errorf("%s returned by vision filter but lacks vision", m.ID)
		}
	}

	vision := r.ListWithCapability(CapVision)
	if len(vision) == 0 || len(vision) == r.Len() {
		t.Errorf("vision filter should be a strict subset, got %d of %d", len(vision), r.Len())
	}
}

func TestDefaultModelForRole(t *testing.T) {
	r := loadTestRegistry(t)

	tests := []struct {
		role string
		want string
	}{
		{"receipt", "anthropic/claude-3.5-sonnet"},
		{"categorize", "anthropic/claude-3-haiku"},
		{"settlement", "openai/gpt-4o-mini"},
		{"reconciliation", "anthropic/claude-3.5-sonnet"},
		{"concierge", "openai/gpt-4o"},
		{"made-up-role", DefaultGlobalModel},
	}

	for _, tt := range tests {
		if got := r.DefaultModelForRole(tt.role); got != tt.want {
			t.Errorf("DefaultModelForRole(%q) = %q, want %q", tt.role, got, tt.want)
		}
	}

	// Every role default must resolve to a catalog entry.
	for _, role := range Roles() {
		id := r.DefaultModelForRole(role)
		if _, ok := r.Get(id); !ok {
			t.Errorf("role %q default %q not in catalog", role, id)
		}
	}
}

func TestNativeModelID(t *testing.T) {
	tests := []struct {
		name  string
		model ModelDefinition
		want  string
	}{
		{"explicit", ModelDefinition{ID: "anthropic/claude-3.5-sonnet", NativeID: "claude-3-5-sonnet-20241022"}, "claude-3-5-sonnet-20241022"},
		{"prefix stripped", ModelDefinition{ID: "openai/gpt-4o"}, "gpt-4o"},
		{"no prefix", ModelDefinition{ID: "gpt-4o"}, "gpt-4o"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.model.NativeModelID(); got != tt.want {
				t.Errorf("NativeModelID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadWithOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")

	overlay := `models:
  - id: openai/gpt-4o
    pricing:
      inputPer1k: 0.005
  - id: local/test-model
    name: Test Model
    provider: openai
    contextWindow: 32000
    maxOutputTokens: 4096
    pricing:
      inputPer1k: 0.001
      outputPer1k: 0.002
    taskType: simple
`
	if err := os.WriteFile(path, []byte(overlay), 0644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load with overrides failed: %v", err)
	}

	m, ok := r.Get("openai/gpt-4o")
	if !ok {
		t.Fatal("gpt-4o missing after overrides")
	}
	if m.Pricing.InputPer1k != 0.005 {
		t.Errorf("overridden inputPer1k = %v, want 0.005", m.Pricing.InputPer1k)
	}
	// Untouched fields survive the overlay.
	if m.Pricing.OutputPer1k != 0.01 {
		t.Errorf("outputPer1k = %v, want 0.01", m.Pricing.OutputPer1k)
	}
	if m.ContextWindow != 128000 {
		t.Errorf("contextWindow = %v, want 128000", m.ContextWindow)
	}

	added, ok := r.Get("local/test-model")
	if !ok {
		t.Fatal("expected overlay to add local/test-model")
	}
	if added.Pricing.OutputPer1k != 0.002 {
		t.Errorf("added model outputPer1k = %v, want 0.002", added.Pricing.OutputPer1k)
	}
}

func TestLoadMissingOverridesFile(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("missing overrides file should not fail Load: %v", err)
	}
	if r.Len() == 0 {
		t.Error("expected embedded catalog to load")
	}
}
