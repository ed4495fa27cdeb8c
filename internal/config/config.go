// Package config handles configuration loading for InvestLens.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"      yaml:"llm"`
	Sources  SourcesConfig  `mapstructure:"sources"  yaml:"sources"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// LLMConfig holds the default LLM endpoint. Per-request model configs
// sent by clients override these values call by call.
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"     yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url"    yaml:"base_url"` // OpenAI-compatible, e.g. "https://api.openai.com/v1"
	Model       string  `mapstructure:"model"       yaml:"model"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"  yaml:"max_tokens"`
	TimeoutSec  int     `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// SourcesConfig holds market data source settings.
type SourcesConfig struct {
	Path            string `mapstructure:"path"              yaml:"path"` // data source registry file
	AlphaVantageKey string `mapstructure:"alpha_vantage_key" yaml:"alpha_vantage_key"`
}

// AnalysisConfig holds consensus engine settings.
type AnalysisConfig struct {
	AllowMock    bool     `mapstructure:"allow_mock"    yaml:"allow_mock"` // mock responses when the LLM is unreachable
	DefaultFocus []string `mapstructure:"default_focus" yaml:"default_focus"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.investlens/config.yaml (home directory)
//  3. /etc/investlens/config.yaml (system)
//
// Environment variables override config file values.
// Format: INVESTLENS_<SECTION>_<KEY>, e.g., INVESTLENS_LLM_API_KEY
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".investlens"))
	v.AddConfigPath("/etc/investlens")

	v.SetEnvPrefix("INVESTLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("INVESTLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1500)
	v.SetDefault("llm.timeout_sec", 120)

	// Sources defaults
	v.SetDefault("sources.path", filepath.Join(homeDir(), ".investlens", "sources.json"))

	// Analysis defaults
	v.SetDefault("analysis.allow_mock", false)
	v.SetDefault("analysis.default_focus", []string{"Technical", "Fundamental", "Sentiment"})

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment
// variables. The short names (LLM_API_KEY, ALPHA_VANTAGE_API_KEY) are
// kept for .env compatibility alongside the prefixed forms.
func overrideFromEnv(cfg *Config) {
	if key := firstEnv("INVESTLENS_LLM_API_KEY", "LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if url := firstEnv("INVESTLENS_LLM_BASE_URL", "LLM_BASE_URL"); url != "" {
		cfg.LLM.BaseURL = url
	}
	if model := firstEnv("INVESTLENS_LLM_MODEL", "LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if key := firstEnv("INVESTLENS_SOURCES_ALPHA_VANTAGE_KEY", "ALPHA_VANTAGE_API_KEY"); key != "" {
		cfg.Sources.AlphaVantageKey = key
	}
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
