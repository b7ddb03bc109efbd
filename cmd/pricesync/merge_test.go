package main

import (
	"testing"

	"github.com/wayfarelabs/faregate/internal/catalog"
)

func testModel(id string, provider catalog.Provider, inPer1k, outPer1k float64) catalog.ModelDefinition {
	return catalog.ModelDefinition{
		ID:              id,
		Provider:        provider,
		ContextWindow:   128000,
		MaxOutputTokens: 4096,
		Pricing: catalog.Pricing{
			InputPer1k:  inPer1k,
			OutputPer1k: outPer1k,
		},
	}
}

func TestApplyPricingConvertsPerMillion(t *testing.T) {
	models := []catalog.ModelDefinition{
		testModel("openai/gpt-4o", catalog.ProviderOpenAI, 0.0025, 0.01),
	}
	fetched := map[string]*modelsDevModel{
		"openai/gpt-4o": {
			Cost: modelsDevCost{Input: 5.0, Output: 20.0},
		},
	}

	updated, unchanged, missing := applyPricing(models, fetched)
	if updated != 1 || unchanged != 0 || missing != 0 {
		t.Fatalf("counts = %d/%d/%d, want 1/0/0", updated, unchanged, missing)
	}
	if models[0].Pricing.InputPer1k != 0.005 {
		t.Errorf("InputPer1k = %g, want 0.005", models[0].Pricing.InputPer1k)
	}
	if models[0].Pricing.OutputPer1k != 0.02 {
		t.Errorf("OutputPer1k = %g, want 0.02", models[0].Pricing.OutputPer1k)
	}
}

func TestApplyPricingUnchangedWhenCurrent(t *testing.T) {
	models := []catalog.ModelDefinition{
		testModel("openai/gpt-4o", catalog.ProviderOpenAI, 0.005, 0.02),
	}
	fetched := map[string]*modelsDevModel{
		"openai/gpt-4o": {
			Cost: modelsDevCost{Input: 5.0, Output: 20.0},
		},
	}

	updated, unchanged, missing := applyPricing(models, fetched)
	if updated != 0 || unchanged != 1 || missing != 0 {
		t.Fatalf("counts = %d/%d/%d, want 0/1/0", updated, unchanged, missing)
	}
}

func TestApplyPricingMissingEntry(t *testing.T) {
	models := []catalog.ModelDefinition{
		testModel("acme/unknown", "acme", 0.001, 0.002),
	}

	updated, unchanged, missing := applyPricing(models, map[string]*modelsDevModel{})
	if updated != 0 || unchanged != 0 || missing != 1 {
		t.Fatalf("counts = %d/%d/%d, want 0/0/1", updated, unchanged, missing)
	}
	if models[0].Pricing.InputPer1k != 0.001 {
		t.Errorf("pricing modified for missing entry: %g", models[0].Pricing.InputPer1k)
	}
}

func TestApplyPricingLimits(t *testing.T) {
	models := []catalog.ModelDefinition{
		testModel("anthropic/claude-3.5-sonnet", catalog.ProviderAnthropic, 0.003, 0.015),
	}
	fetched := map[string]*modelsDevModel{
		"anthropic/claude-3.5-sonnet": {
			Cost:  modelsDevCost{Input: 3.0, Output: 15.0},
			Limit: modelsDevLimit{Context: 200000, Output: 8192},
		},
	}

	updated, _, _ := applyPricing(models, fetched)
	if updated != 1 {
		t.Fatalf("updated = %d, want 1", updated)
	}
	if models[0].ContextWindow != 200000 {
		t.Errorf("ContextWindow = %d, want 200000", models[0].ContextWindow)
	}
	if models[0].MaxOutputTokens != 8192 {
		t.Errorf("MaxOutputTokens = %d, want 8192", models[0].MaxOutputTokens)
	}
}

func TestApplyPricingZeroLimitsKept(t *testing.T) {
	models := []catalog.ModelDefinition{
		testModel("openai/gpt-4o-mini", catalog.ProviderOpenAI, 0.00015, 0.0006),
	}
	fetched := map[string]*modelsDevModel{
		"openai/gpt-4o-mini": {
			Cost: modelsDevCost{Input: 0.3, Output: 1.2},
		},
	}

	applyPricing(models, fetched)
	if models[0].ContextWindow != 128000 {
		t.Errorf("ContextWindow = %d, want 128000 when models.dev omits limits", models[0].ContextWindow)
	}
	if models[0].MaxOutputTokens != 4096 {
		t.Errorf("MaxOutputTokens = %d, want 4096 when models.dev omits limits", models[0].MaxOutputTokens)
	}
}

func TestLookupKey(t *testing.T) {
	tests := []struct {
		name     string
		model    catalog.ModelDefinition
		wantDir  string
		wantFile string
	}{
		{
			name:     "native id preferred",
			model:    catalog.ModelDefinition{ID: "openai/gpt-4o", Provider: catalog.ProviderOpenAI, NativeID: "gpt-4o"},
			wantDir:  "openai",
			wantFile: "gpt-4o",
		},
		{
			name:     "prefix stripped without native id",
			model:    catalog.ModelDefinition{ID: "anthropic/claude-3-haiku", Provider: catalog.ProviderAnthropic},
			wantDir:  "anthropic",
			wantFile: "claude-3-haiku",
		},
		{
			name:     "meta-llama maps to meta",
			model:    catalog.ModelDefinition{ID: "meta-llama/llama-3.1-70b", Provider: catalog.ProviderMeta, NativeID: "llama-3.1-70b"},
			wantDir:  "meta",
			wantFile: "llama-3.1-70b",
		},
		{
			name:    "unmapped provider skipped",
			model:   catalog.ModelDefinition{ID: "acme/widget", Provider: "acme"},
			wantDir: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, file := lookupKey(tt.model)
			if dir != tt.wantDir {
				t.Errorf("dir = %q, want %q", dir, tt.wantDir)
			}
			if dir != "" && file != tt.wantFile {
				t.Errorf("file = %q, want %q", file, tt.wantFile)
			}
		})
	}
}
