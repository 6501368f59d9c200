// Package config provides application settings.
//
// Settings are created via Load() which handles:
// - Default value application
// - Optional YAML file overlay
// - Environment variable parsing with validation (highest precedence)
// - Provider-specific model and API key lookup
package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ErrUnknownProvider is returned for a provider name with no configuration.
var ErrUnknownProvider = errors.New("unknown provider")

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig       `yaml:"llm"`
	Memory    MemoryConfig    `yaml:"memory"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Index     IndexConfig     `yaml:"index"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Contact   ContactConfig   `yaml:"contact"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   uint32        `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MemoryConfig holds conversational memory configuration.
type MemoryConfig struct {
	WindowSize int `yaml:"window_size"`
}

// RetrievalConfig holds passage retrieval configuration.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// IndexConfig holds document index configuration.
type IndexConfig struct {
	DBPath       string `yaml:"db_path"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// ContactConfig holds the organisation contact details served to clients.
type ContactConfig struct {
	Website string `yaml:"website"`
	Email   string `yaml:"email"`
	Phone   string `yaml:"phone"`
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// Defaults returns settings with every default applied and no provider model resolved.
func Defaults() Settings {
	return Settings{
		LLM: LLMConfig{
			Provider:    "openai",
			MaxTokens:   1024,
			Temperature: 0.2,
			Timeout:     60 * time.Second,
		},
		Memory:    MemoryConfig{WindowSize: 5},
		Retrieval: RetrievalConfig{TopK: 5},
		Index: IndexConfig{
			DBPath:       ".cri/index.db",
			ChunkSize:    800,
			ChunkOverlap: 100,
		},
		Server: ServerConfig{
			Addr:            ":8000",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Contact: ContactConfig{
			Website: "https://cri.it",
			Email:   "info@cri.it",
			Phone:   "+39 06 47591",
		},
	}
}

// Load creates settings from defaults, the YAML file at path (skipped when
// path is empty) and environment variables, in increasing precedence.
// A non-empty provider overrides all of them.
func Load(path, provider string) (Settings, error) {
	s := Defaults()

	if path != "" {
		if err := s.mergeFile(path); err != nil {
			return Settings{}, err
		}
	}
	if err := s.applyEnv(); err != nil {
		return Settings{}, err
	}
	if provider != "" {
		s.LLM.Provider = provider
	}

	s.LLM.Provider = normalizeProvider(s.LLM.Provider)
	info, err := getProviderInfo(s.LLM.Provider)
	if err != nil {
		return Settings{}, err
	}
	if val := os.Getenv(info.modelEnv); val != "" {
		s.LLM.Model = val
	} else if s.LLM.Model == "" {
		s.LLM.Model = info.defaultModel
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return errors.Wrapf(err, "parse config file %s", path)
	}
	return nil
}

func (s *Settings) applyEnv() error {
	var err error

	s.LLM.Provider = getEnvString("LLM_PROVIDER", s.LLM.Provider)
	s.LLM.BaseURL = getEnvString("LLM_BASE_URL", s.LLM.BaseURL)
	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", s.LLM.MaxTokens); err != nil {
		return err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", s.LLM.Temperature); err != nil {
		return err
	}
	if s.LLM.Timeout, err = getEnvDuration("LLM_TIMEOUT", s.LLM.Timeout); err != nil {
		return err
	}

	if s.Memory.WindowSize, err = getEnvInt("MEMORY_WINDOW_SIZE", s.Memory.WindowSize); err != nil {
		return err
	}

	if s.Retrieval.TopK, err = getEnvInt("RETRIEVAL_TOP_K", s.Retrieval.TopK); err != nil {
		return err
	}
	if s.Retrieval.MinScore, err = getEnvFloat64("RETRIEVAL_MIN_SCORE", s.Retrieval.MinScore); err != nil {
		return err
	}

	s.Index.DBPath = getEnvString("INDEX_DB_PATH", s.Index.DBPath)
	if s.Index.ChunkSize, err = getEnvInt("INDEX_CHUNK_SIZE", s.Index.ChunkSize); err != nil {
		return err
	}
	if s.Index.ChunkOverlap, err = getEnvInt("INDEX_CHUNK_OVERLAP", s.Index.ChunkOverlap); err != nil {
		return err
	}

	s.Server.Addr = getEnvString("SERVER_ADDR", s.Server.Addr)
	if s.Server.ShutdownTimeout, err = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", s.Server.ShutdownTimeout); err != nil {
		return err
	}

	s.Log.Level = getEnvString("LOG_LEVEL", s.Log.Level)
	s.Log.Format = getEnvString("LOG_FORMAT", s.Log.Format)

	s.Contact.Website = getEnvString("CRI_WEBSITE", s.Contact.Website)
	s.Contact.Email = getEnvString("CRI_CONTACT_EMAIL", s.Contact.Email)
	s.Contact.Phone = getEnvString("CRI_CONTACT_PHONE", s.Contact.Phone)
	return nil
}

// Validate checks cross-field constraints.
func (s Settings) Validate() error {
	switch {
	case s.Memory.WindowSize <= 0:
		return errors.Newf("memory window size must be positive, got %d", s.Memory.WindowSize)
	case s.Retrieval.TopK <= 0:
		return errors.Newf("retrieval top-k must be positive, got %d", s.Retrieval.TopK)
	case s.Index.ChunkSize <= 0:
		return errors.Newf("index chunk size must be positive, got %d", s.Index.ChunkSize)
	case s.Index.ChunkOverlap < 0 || s.Index.ChunkOverlap >= s.Index.ChunkSize:
		return errors.Newf("index chunk overlap must be in [0, %d), got %d", s.Index.ChunkSize, s.Index.ChunkOverlap)
	case s.LLM.Temperature < 0 || s.LLM.Temperature > 2:
		return errors.Newf("llm temperature must be in [0, 2], got %v", s.LLM.Temperature)
	case s.Log.Format != "json" && s.Log.Format != "console":
		return errors.Newf("log format must be json or console, got %q", s.Log.Format)
	}
	return nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, errors.Wrapf(ErrUnknownProvider, "%q (supported: %s)",
			provider, strings.Join(SupportedProviders(), ", "))
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	info, err := getProviderInfo(normalizeProvider(provider))
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", errors.Newf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// SupportedProviders returns the supported provider names in sorted order.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value for %s: %q", key, val)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value for %s: %q", key, val)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value for %s: %q", key, val)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value for %s: %q", key, val)
	}
	return d, nil
}
