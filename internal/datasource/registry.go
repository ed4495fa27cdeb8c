package datasource

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
)

// SourceConfig is one entry of the sources.json file. Entries describe
// user-configured data source instances layered on top of the built-in
// defaults.
type SourceConfig struct {
	Name             string `json:"name"`
	ProviderType     string `json:"provider_type"`
	APIKey           string `json:"api_key,omitempty"`
	EndpointOverride string `json:"endpoint_override,omitempty"`
	Enabled          bool   `json:"enabled"`
}

// RegistryOptions configures registry construction.
type RegistryOptions struct {
	// SourcesPath is the sources.json location. A missing file is not
	// an error; the registry falls back to the built-in defaults.
	SourcesPath string

	// AlphaVantageKey is the legacy env-provided credential, used when
	// no configured entry covers Alpha Vantage.
	AlphaVantageKey string
}

// ChinaSource is the capability set required of the China-market
// adapter.
type ChinaSource interface {
	DataSource
	HistoricalSource
}

// snapshot is an immutable view of the built sources. Readers load it
// atomically so quote requests never observe a half-built chain during
// Reload.
type snapshot struct {
	chain   []DataSource
	china   ChinaSource
	configs []SourceConfig
}

// Registry holds the ordered fallback chain of data sources plus the
// China-market adapter, which is routed to directly rather than through
// the chain. Reload rebuilds the set from sources.json and swaps it in
// atomically.
type Registry struct {
	opts RegistryOptions
	snap atomic.Pointer[snapshot]
}

// NewRegistry builds a registry from the given options. Errors reading
// sources.json are logged and ignored so a corrupt config file never
// takes quote serving down.
func NewRegistry(opts RegistryOptions) *Registry {
	r := &Registry{opts: opts}
	if err := r.Reload(); err != nil {
		log.Printf("datasource/registry: %v, using defaults", err)
		r.snap.Store(buildSnapshot(nil, opts))
	}
	return r
}

// Reload re-reads sources.json and atomically replaces the source set.
// In-flight requests keep using the snapshot they started with.
func (r *Registry) Reload() error {
	configs, err := loadSourceConfigs(r.opts.SourcesPath)
	if err != nil {
		return err
	}
	r.snap.Store(buildSnapshot(configs, r.opts))
	return nil
}

// Sources returns the current fallback chain, primary first. The
// returned slice must not be modified.
func (r *Registry) Sources() []DataSource {
	return r.snap.Load().chain
}

// China returns the China-market adapter.
func (r *Registry) China() ChinaSource {
	return r.snap.Load().china
}

// Configs returns the configured source entries as last loaded.
func (r *Registry) Configs() []SourceConfig {
	configs := r.snap.Load().configs
	out := make([]SourceConfig, len(configs))
	copy(out, configs)
	return out
}

// UpdateConfigs persists new source entries to sources.json and reloads.
func (r *Registry) UpdateConfigs(configs []SourceConfig) error {
	for i, c := range configs {
		if c.Name == "" {
			return fmt.Errorf("source %d: name is required", i)
		}
		if c.ProviderType == "" {
			return fmt.Errorf("source %q: provider_type is required", c.Name)
		}
	}
	if err := saveSourceConfigs(r.opts.SourcesPath, configs); err != nil {
		return err
	}
	return r.Reload()
}

// buildSnapshot assembles the source chain: enabled configured entries
// in file order, then the legacy env-credential default, then the
// always-available Yahoo fallback. Provider types already present are
// not duplicated.
func buildSnapshot(configs []SourceConfig, opts RegistryOptions) *snapshot {
	snap := &snapshot{configs: configs}
	seen := map[string]bool{}

	for _, c := range configs {
		if !c.Enabled {
			continue
		}
		if c.ProviderType == "alphavantage" && c.APIKey == "" {
			// A keyless entry inherits the env credential.
			c.APIKey = opts.AlphaVantageKey
		}
		src := newConfiguredSource(c)
		if src == nil {
			log.Printf("datasource/registry: unknown provider_type %q for source %q, skipping", c.ProviderType, c.Name)
			continue
		}
		snap.chain = append(snap.chain, src)
		seen[c.ProviderType] = true
	}

	if !seen["alphavantage"] && opts.AlphaVantageKey != "" {
		snap.chain = append(snap.chain, NewAlphaVantage(opts.AlphaVantageKey, ""))
		seen["alphavantage"] = true
	}
	if !seen["yfinance"] {
		snap.chain = append(snap.chain, NewYFinance())
	}

	snap.china = NewEastmoney()
	return snap
}

// newConfiguredSource instantiates a source from a config entry.
// Returns nil for unknown provider types.
func newConfiguredSource(c SourceConfig) DataSource {
	switch c.ProviderType {
	case "yfinance":
		return NewYFinance()
	case "alphavantage":
		return NewAlphaVantage(c.APIKey, c.EndpointOverride)
	case "eastmoney":
		return NewEastmoney()
	default:
		return nil
	}
}

func loadSourceConfigs(path string) ([]SourceConfig, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var configs []SourceConfig
	if err := json.Unmarshal(raw, &configs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return configs, nil
}

func saveSourceConfigs(path string, configs []SourceConfig) error {
	if path == "" {
		return fmt.Errorf("no sources file path configured")
	}
	raw, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	// Write-then-rename keeps a crash from truncating the config.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
