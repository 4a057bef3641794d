package provider

import "testing"

func TestParseModelString(t *testing.T) {
	tests := []struct {
		input        string
		wantProvider string
		wantModel    string
	}{
		{"anthropic/claude-3-opus", "anthropic", "claude-3-opus"},
		{"openai/gpt-4o", "openai", "gpt-4o"},
		{"bedrock/anthropic.claude-3", "bedrock", "anthropic.claude-3"},
		{"claude-3-opus", "", "claude-3-opus"}, // No provider prefix
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			provider, model := ParseModelString(tt.input)
			if provider != tt.wantProvider {
				t.Errorf("ParseModelString(%q) provider = %q, want %q", tt.input, provider, tt.wantProvider)
			}
			if model != tt.wantModel {
				t.Errorf("ParseModelString(%q) model = %q, want %q", tt.input, model, tt.wantModel)
			}
		})
	}
}

func TestModelPriority(t *testing.T) {
	tests := []struct {
		modelID        string
		wantHigherThan string
	}{
		{"gpt-5-turbo", "claude-sonnet-4-latest"},
		{"claude-sonnet-4-20250514", "gpt-4o-2024"},
		{"claude-opus-4", "gpt-4o"},
		{"gpt-4o-latest", "claude-3-5-sonnet"},
	}

	for _, tt := range tests {
		t.Run(tt.modelID+" > "+tt.wantHigherThan, func(t *testing.T) {
			high := modelPriority(tt.modelID)
			low := modelPriority(tt.wantHigherThan)
			if high <= low {
				t.Errorf("modelPriority(%q) = %d, should be > modelPriority(%q) = %d",
					tt.modelID, high, tt.wantHigherThan, low)
			}
		})
	}
}

func TestAnthropicModelsCatalog(t *testing.T) {
	models := anthropicModels()
	if len(models) == 0 {
		t.Fatal("expected a non-empty anthropic model catalog")
	}
	for _, m := range models {
		if m.ProviderID != "anthropic" {
			t.Errorf("model %s has ProviderID %q, want 'anthropic'", m.ID, m.ProviderID)
		}
		if !m.SupportsTools {
			t.Errorf("model %s should support tools", m.ID)
		}
	}
}

func TestOpenAIModelsCatalog(t *testing.T) {
	models := openAIModels()
	if len(models) == 0 {
		t.Fatal("expected a non-empty openai model catalog")
	}
	for _, m := range models {
		if m.ProviderID != "openai" {
			t.Errorf("model %s has ProviderID %q, want 'openai'", m.ID, m.ProviderID)
		}
	}
}
