package llm

import (
	"os"
	"testing"
)

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		in   string
		want ProviderType
	}{
		{"openai", ProviderOpenAI},
		{"GPT", ProviderOpenAI},
		{"claude", ProviderAnthropic},
		{"Anthropic", ProviderAnthropic},
		{"deepseek", ProviderDeepSeek},
		{" google ", ProviderGemini},
	}
	for _, tt := range tests {
		got, err := ParseProviderType(tt.in)
		if err != nil {
			t.Fatalf("ParseProviderType(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseProviderType("mistral"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestProviderTypeDefaults(t *testing.T) {
	for _, p := range []ProviderType{ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderGemini} {
		if p.DefaultModel() == "" {
			t.Errorf("%s: empty default model", p)
		}
		if p.EnvVar() == "" {
			t.Errorf("%s: empty env var", p)
		}
	}
	if ProviderType(99).String() != "unknown" {
		t.Error("expected unknown for out-of-range provider")
	}
}

func TestBuilderFromEnvMissingKey(t *testing.T) {
	original := os.Getenv("ANTHROPIC_API_KEY")
	os.Unsetenv("ANTHROPIC_API_KEY")
	defer os.Setenv("ANTHROPIC_API_KEY", original)

	if _, err := ProviderAnthropic.FromEnv(); err == nil {
		t.Error("expected error when API key is missing")
	}
}

func TestBuilderAppliesSettings(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	p, err := ProviderOpenAI.Model("gpt-4o-mini").MaxTokens(64).Temperature(0).FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	oa, ok := p.(*OpenAIProvider)
	if !ok {
		t.Fatalf("expected *OpenAIProvider, got %T", p)
	}
	if oa.Model() != "gpt-4o-mini" || oa.maxTokens != 64 || oa.temperature != 0 {
		t.Errorf("builder settings not applied: model=%s maxTokens=%d temperature=%v", oa.Model(), oa.maxTokens, oa.temperature)
	}
}

func TestBuilderRejectsEmptyKey(t *testing.T) {
	if _, err := ProviderOpenAI.APIKey(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestTokenUsageAdd(t *testing.T) {
	total := &TokenUsage{}
	total.Add(&TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5})
	total.Add(nil)
	total.Add(&TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2})

	if total.TotalTokens != 7 || total.PromptTokens != 4 || total.CompletionTokens != 3 {
		t.Errorf("unexpected totals: %+v", total)
	}
}
