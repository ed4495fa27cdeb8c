package datasource

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestBuildSnapshotDefaults(t *testing.T) {
	snap := buildSnapshot(nil, RegistryOptions{})

	if len(snap.chain) != 1 {
		t.Fatalf("got %d sources, want 1 (yfinance fallback)", len(snap.chain))
	}
	if snap.chain[0].Name() != "yfinance" {
		t.Fatalf("got %s, want yfinance last", snap.chain[0].Name())
	}
	if snap.china == nil {
		t.Fatal("china adapter must always be present")
	}
}

func TestBuildSnapshotLegacyEnvKey(t *testing.T) {
	snap := buildSnapshot(nil, RegistryOptions{AlphaVantageKey: "demo"})

	if len(snap.chain) != 2 {
		t.Fatalf("got %d sources, want 2", len(snap.chain))
	}
	if snap.chain[0].Name() != "alphavantage" {
		t.Fatalf("env-keyed alphavantage should precede the fallback, got %s", snap.chain[0].Name())
	}
	if snap.chain[1].Name() != "yfinance" {
		t.Fatalf("yfinance must be last, got %s", snap.chain[1].Name())
	}
}

func TestBuildSnapshotConfiguredNotDuplicated(t *testing.T) {
	configs := []SourceConfig{
		{Name: "my-av", ProviderType: "alphavantage", APIKey: "abc", Enabled: true},
		{Name: "disabled", ProviderType: "yfinance", Enabled: false},
	}
	snap := buildSnapshot(configs, RegistryOptions{AlphaVantageKey: "legacy"})

	// Configured alphavantage suppresses the legacy env entry; the
	// disabled yfinance entry does not suppress the fallback.
	if len(snap.chain) != 2 {
		t.Fatalf("got %d sources, want 2", len(snap.chain))
	}
	av, ok := snap.chain[0].(*AlphaVantage)
	if !ok {
		t.Fatalf("first source should be alphavantage, got %T", snap.chain[0])
	}
	if av.apiKey != "abc" {
		t.Fatalf("configured key should win over legacy, got %q", av.apiKey)
	}
	if snap.chain[1].Name() != "yfinance" {
		t.Fatalf("yfinance must be last, got %s", snap.chain[1].Name())
	}
}

func TestBuildSnapshotKeylessEntryInheritsEnvKey(t *testing.T) {
	configs := []SourceConfig{
		{Name: "my-av", ProviderType: "alphavantage", Enabled: true},
	}
	snap := buildSnapshot(configs, RegistryOptions{AlphaVantageKey: "legacy"})

	if len(snap.chain) != 2 {
		t.Fatalf("got %d sources, want 2", len(snap.chain))
	}
	av, ok := snap.chain[0].(*AlphaVantage)
	if !ok {
		t.Fatalf("first source should be alphavantage, got %T", snap.chain[0])
	}
	if av.apiKey != "legacy" {
		t.Fatalf("keyless entry should inherit the env credential, got %q", av.apiKey)
	}
}

func TestBuildSnapshotUnknownTypeSkipped(t *testing.T) {
	configs := []SourceConfig{
		{Name: "weird", ProviderType: "bloomberg-terminal", Enabled: true},
	}
	snap := buildSnapshot(configs, RegistryOptions{})
	if len(snap.chain) != 1 || snap.chain[0].Name() != "yfinance" {
		t.Fatalf("unknown provider type should be skipped, chain %d long", len(snap.chain))
	}
}

func TestRegistryMissingFileUsesDefaults(t *testing.T) {
	r := NewRegistry(RegistryOptions{
		SourcesPath: filepath.Join(t.TempDir(), "nope", "sources.json"),
	})
	if len(r.Sources()) == 0 {
		t.Fatal("missing sources.json must still yield the default chain")
	}
}

func TestRegistryUpdateConfigsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	r := NewRegistry(RegistryOptions{SourcesPath: path})

	configs := []SourceConfig{
		{Name: "primary", ProviderType: "alphavantage", APIKey: "k1", Enabled: true},
	}
	if err := r.UpdateConfigs(configs); err != nil {
		t.Fatalf("UpdateConfigs: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("sources.json not written: %v", err)
	}

	got := r.Configs()
	if len(got) != 1 || got[0].Name != "primary" {
		t.Fatalf("got %+v, want the saved entry", got)
	}
	if r.Sources()[0].Name() != "alphavantage" {
		t.Fatal("reload after save should rebuild the chain")
	}

	// A second registry reading the same file sees the saved entries.
	r2 := NewRegistry(RegistryOptions{SourcesPath: path})
	if got := r2.Configs(); len(got) != 1 || got[0].APIKey != "k1" {
		t.Fatalf("fresh registry got %+v", got)
	}
}

func TestRegistryUpdateConfigsValidation(t *testing.T) {
	r := NewRegistry(RegistryOptions{SourcesPath: filepath.Join(t.TempDir(), "sources.json")})

	if err := r.UpdateConfigs([]SourceConfig{{ProviderType: "yfinance"}}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if err := r.UpdateConfigs([]SourceConfig{{Name: "x"}}); err == nil {
		t.Fatal("expected error for missing provider_type")
	}
}

func TestRegistryCorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(RegistryOptions{SourcesPath: path})
	if len(r.Sources()) == 0 {
		t.Fatal("corrupt file must not leave the registry empty")
	}
}

func TestRegistryConcurrentReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	r := NewRegistry(RegistryOptions{SourcesPath: path})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				srcs := r.Sources()
				if len(srcs) == 0 {
					t.Error("observed empty chain during reload")
					return
				}
				if r.China() == nil {
					t.Error("observed nil china adapter during reload")
					return
				}
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := r.Reload(); err != nil {
					t.Errorf("reload: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
