package config

import (
	"os"
	"path/filepath"
	"testing"
)

// ── Load / Defaults ──

func TestLoadReturnsDefaults(t *testing.T) {
	// Unset any env vars that would interfere
	envVars := []string{
		"INVESTLENS_LLM_API_KEY", "LLM_API_KEY",
		"INVESTLENS_LLM_BASE_URL", "LLM_BASE_URL",
		"INVESTLENS_LLM_MODEL", "LLM_MODEL",
		"INVESTLENS_SOURCES_ALPHA_VANTAGE_KEY", "ALPHA_VANTAGE_API_KEY",
	}
	for _, e := range envVars {
		os.Unsetenv(e)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// LLM defaults
	if cfg.LLM.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("LLM.BaseURL: got %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "gpt-3.5-turbo" {
		t.Errorf("LLM.Model: got %q, want %q", cfg.LLM.Model, "gpt-3.5-turbo")
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Errorf("LLM.Temperature: got %f, want 0.7", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens != 1500 {
		t.Errorf("LLM.MaxTokens: got %d, want 1500", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.TimeoutSec != 120 {
		t.Errorf("LLM.TimeoutSec: got %d, want 120", cfg.LLM.TimeoutSec)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("LLM.APIKey should be empty by default, got %q", cfg.LLM.APIKey)
	}

	// Analysis defaults
	if cfg.Analysis.AllowMock {
		t.Error("Analysis.AllowMock should be false by default")
	}
	if len(cfg.Analysis.DefaultFocus) != 3 || cfg.Analysis.DefaultFocus[0] != "Technical" {
		t.Errorf("Analysis.DefaultFocus: got %v", cfg.Analysis.DefaultFocus)
	}

	// Sources defaults
	if cfg.Sources.Path == "" {
		t.Error("Sources.Path should have a default")
	}

	// API defaults
	if cfg.API.Host != "0.0.0.0" {
		t.Errorf("API.Host: got %q, want %q", cfg.API.Host, "0.0.0.0")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port: got %d, want 8080", cfg.API.Port)
	}
	if len(cfg.API.CORSOrigins) != 1 || cfg.API.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("API.CORSOrigins: got %v", cfg.API.CORSOrigins)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format: got %q, want %q", cfg.Logging.Format, "text")
	}
}

// ── Environment overrides ──

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INVESTLENS_LLM_API_KEY", "sk-test-override-key")
	t.Setenv("INVESTLENS_LLM_BASE_URL", "https://llm.example.com/v1")
	t.Setenv("INVESTLENS_API_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.LLM.APIKey != "sk-test-override-key" {
		t.Errorf("LLM.APIKey: got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != "https://llm.example.com/v1" {
		t.Errorf("LLM.BaseURL: got %q", cfg.LLM.BaseURL)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port: got %d, want 9090", cfg.API.Port)
	}
}

func TestShortEnvNames(t *testing.T) {
	os.Unsetenv("INVESTLENS_LLM_API_KEY")
	os.Unsetenv("INVESTLENS_SOURCES_ALPHA_VANTAGE_KEY")
	t.Setenv("LLM_API_KEY", "sk-short-name")
	t.Setenv("ALPHA_VANTAGE_API_KEY", "av-demo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.LLM.APIKey != "sk-short-name" {
		t.Errorf("LLM.APIKey: got %q, want short env name to apply", cfg.LLM.APIKey)
	}
	if cfg.Sources.AlphaVantageKey != "av-demo" {
		t.Errorf("Sources.AlphaVantageKey: got %q", cfg.Sources.AlphaVantageKey)
	}
}

func TestPrefixedEnvWinsOverShort(t *testing.T) {
	t.Setenv("INVESTLENS_LLM_API_KEY", "sk-prefixed")
	t.Setenv("LLM_API_KEY", "sk-short")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LLM.APIKey != "sk-prefixed" {
		t.Errorf("LLM.APIKey: got %q, want prefixed form to win", cfg.LLM.APIKey)
	}
}

// ── LoadFromFile ──

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
llm:
  model: custom-model
  temperature: 0.2
analysis:
  allow_mock: true
api:
  port: 3001
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	os.Unsetenv("LLM_MODEL")
	os.Unsetenv("INVESTLENS_LLM_MODEL")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}

	if cfg.LLM.Model != "custom-model" {
		t.Errorf("LLM.Model: got %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM.Temperature: got %f", cfg.LLM.Temperature)
	}
	if !cfg.Analysis.AllowMock {
		t.Error("Analysis.AllowMock should be true from file")
	}
	if cfg.API.Port != 3001 {
		t.Errorf("API.Port: got %d", cfg.API.Port)
	}
	// Unspecified values keep defaults
	if cfg.LLM.MaxTokens != 1500 {
		t.Errorf("LLM.MaxTokens: got %d, want default 1500", cfg.LLM.MaxTokens)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

// ── Key status ──

func TestCheckAPIKeys(t *testing.T) {
	os.Unsetenv("INVESTLENS_LLM_API_KEY")
	os.Unsetenv("LLM_API_KEY")
	os.Unsetenv("INVESTLENS_SOURCES_ALPHA_VANTAGE_KEY")
	os.Unsetenv("ALPHA_VANTAGE_API_KEY")

	cfg := &Config{}
	cfg.LLM.APIKey = "sk-1234567890abcdef"

	statuses := CheckAPIKeys(cfg)
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}

	llmKey := statuses[0]
	if !llmKey.IsSet || llmKey.Source != KeySourceConfig {
		t.Errorf("LLM key status: %+v", llmKey)
	}
	if llmKey.Masked != "sk-...def" {
		t.Errorf("Masked: got %q, want %q", llmKey.Masked, "sk-...def")
	}

	avKey := statuses[1]
	if avKey.IsSet || avKey.Source != KeySourceNone {
		t.Errorf("Alpha Vantage key status: %+v", avKey)
	}
}

func TestCheckAPIKeysEnvSource(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-from-environment")
	cfg := &Config{}
	cfg.LLM.APIKey = "sk-from-environment"

	statuses := CheckAPIKeys(cfg)
	if statuses[0].Source != KeySourceEnv {
		t.Errorf("Source: got %q, want env", statuses[0].Source)
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "***"},
		{"short", "***"},
		{"12345678", "***"},
		{"sk-proj-abcdefxyz", "sk-...xyz"},
	}
	for _, tt := range tests {
		if got := maskKey(tt.key); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
