package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

// clearEnv blanks every variable the loader reads so tests are hermetic.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "LLM_BASE_URL", "LLM_MAX_TOKENS", "LLM_TEMPERATURE", "LLM_TIMEOUT",
		"MEMORY_WINDOW_SIZE", "RETRIEVAL_TOP_K", "RETRIEVAL_MIN_SCORE",
		"INDEX_DB_PATH", "INDEX_CHUNK_SIZE", "INDEX_CHUNK_OVERLAP",
		"SERVER_ADDR", "SERVER_SHUTDOWN_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT",
		"CRI_WEBSITE", "CRI_CONTACT_EMAIL", "CRI_CONTACT_PHONE",
		"OPENAI_MODEL", "ANTHROPIC_MODEL", "DEEPSEEK_MODEL", "GEMINI_MODEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	settings, err := Load("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", settings.LLM.Provider)
	}
	if settings.LLM.Model != "gpt-4o" {
		t.Errorf("expected default model, got %q", settings.LLM.Model)
	}
	if settings.Memory.WindowSize != 5 {
		t.Errorf("expected window size 5, got %d", settings.Memory.WindowSize)
	}
	if settings.Server.Addr != ":8000" {
		t.Errorf("expected addr :8000, got %q", settings.Server.Addr)
	}
	if settings.Contact.Email != "info@cri.it" {
		t.Errorf("unexpected contact email %q", settings.Contact.Email)
	}
}

func TestLoadWithAlias(t *testing.T) {
	clearEnv(t)

	settings, err := Load("", "claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
}

func TestLoadUnknownProvider(t *testing.T) {
	clearEnv(t)

	_, err := Load("", "unknown_provider")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "anthropic, deepseek, gemini, openai") {
		t.Errorf("expected supported providers in error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "deepseek")
	t.Setenv("DEEPSEEK_MODEL", "deepseek-reasoner")
	t.Setenv("MEMORY_WINDOW_SIZE", "3")
	t.Setenv("RETRIEVAL_MIN_SCORE", "0.5")
	t.Setenv("LLM_TIMEOUT", "15s")
	t.Setenv("CRI_CONTACT_PHONE", "118")

	settings, err := Load("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "deepseek" || settings.LLM.Model != "deepseek-reasoner" {
		t.Errorf("unexpected llm settings: %+v", settings.LLM)
	}
	if settings.Memory.WindowSize != 3 {
		t.Errorf("expected window size 3, got %d", settings.Memory.WindowSize)
	}
	if settings.Retrieval.MinScore != 0.5 {
		t.Errorf("expected min score 0.5, got %v", settings.Retrieval.MinScore)
	}
	if settings.LLM.Timeout != 15*time.Second {
		t.Errorf("expected timeout 15s, got %v", settings.LLM.Timeout)
	}
	if settings.Contact.Phone != "118" {
		t.Errorf("expected phone override, got %q", settings.Contact.Phone)
	}

	// Explicit provider beats the environment.
	settings, err = Load("", "gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "gemini" {
		t.Errorf("expected explicit provider to win, got %q", settings.LLM.Provider)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "cri.yaml")
	content := `
llm:
  provider: anthropic
  model: claude-haiku
  timeout: 5s
memory:
  window_size: 8
retrieval:
  top_k: 3
log:
  format: console
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RETRIEVAL_TOP_K", "7")

	settings, err := Load(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" || settings.LLM.Model != "claude-haiku" {
		t.Errorf("yaml llm settings not applied: %+v", settings.LLM)
	}
	if settings.LLM.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", settings.LLM.Timeout)
	}
	if settings.Memory.WindowSize != 8 {
		t.Errorf("expected yaml window size 8, got %d", settings.Memory.WindowSize)
	}
	if settings.Retrieval.TopK != 7 {
		t.Errorf("env should override yaml top_k, got %d", settings.Retrieval.TopK)
	}
	if settings.Log.Format != "console" {
		t.Errorf("expected console format, got %q", settings.Log.Format)
	}
	// Fields absent from the file keep their defaults.
	if settings.Index.ChunkSize != 800 {
		t.Errorf("expected default chunk size, got %d", settings.Index.ChunkSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero window", func(s *Settings) { s.Memory.WindowSize = 0 }},
		{"zero top-k", func(s *Settings) { s.Retrieval.TopK = 0 }},
		{"overlap too large", func(s *Settings) { s.Index.ChunkOverlap = s.Index.ChunkSize }},
		{"temperature out of range", func(s *Settings) { s.LLM.Temperature = 3 }},
		{"bad log format", func(s *Settings) { s.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := Defaults().Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}

func TestAPIKeyForValidProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	key, err := APIKeyFor("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := APIKeyFor("gpt"); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	if _, err := APIKeyFor("unknown"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestLoadDefaultModelForAlias(t *testing.T) {
	clearEnv(t)
	settings, err := Load("", "google")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Model != "gemini-2.5-flash" {
		t.Errorf("expected default gemini model, got %q", settings.LLM.Model)
	}
}

func TestLoadWithInvalidEnvVar(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")

	if _, err := Load("", ""); err == nil {
		t.Error("expected error for invalid LLM_MAX_TOKENS")
	}
}

func TestSupportedProviders(t *testing.T) {
	want := []string{"anthropic", "deepseek", "gemini", "openai"}
	if got := SupportedProviders(); !reflect.DeepEqual(got, want) {
		t.Errorf("SupportedProviders() = %v, want %v", got, want)
	}
}
