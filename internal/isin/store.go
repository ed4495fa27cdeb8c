// Package isin provides the ISIN-to-ticker lookup collaborator used by
// the ticker normalizer. The storage backend is pluggable; the default
// in-memory store ships with a small seed set of Hong Kong ETFs.
package isin

import (
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound is returned when an ISIN has no known ticker mapping.
var ErrNotFound = fmt.Errorf("isin: no mapping found")

// Asset is one ISIN-to-ticker mapping with display metadata.
type Asset struct {
	ISIN      string `json:"isin"`
	Ticker    string `json:"ticker"`
	Name      string `json:"name"`
	AssetType string `json:"asset_type"`
	Exchange  string `json:"exchange"`
	Currency  string `json:"currency"`
}

// Store resolves ISINs to tradable tickers. Lookup is exact-match only;
// fuzzy matching is deliberately not part of the contract.
type Store interface {
	// Lookup returns the ticker for an ISIN, or ErrNotFound.
	Lookup(isin string) (string, error)

	// Search returns assets whose ISIN, ticker or name contains the query.
	Search(query string, limit int) []Asset
}

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu     sync.RWMutex
	byISIN map[string]Asset
	order  []string // insertion order, for stable Search results
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byISIN: make(map[string]Asset)}
}

// NewSeededStore creates a store pre-populated with common Hong Kong
// funds and ETFs.
func NewSeededStore() *MemoryStore {
	s := NewMemoryStore()
	for _, a := range seedAssets {
		s.Put(a)
	}
	return s
}

// seedAssets lists commonly requested HK-listed ETFs.
var seedAssets = []Asset{
	{ISIN: "HK0000181112", Ticker: "2800.HK", Name: "Tracker Fund of Hong Kong", AssetType: "ETF", Exchange: "HKEX", Currency: "HKD"},
	{ISIN: "HK0000296944", Ticker: "2828.HK", Name: "Hang Seng China Enterprises Index ETF", AssetType: "ETF", Exchange: "HKEX", Currency: "HKD"},
	{ISIN: "HK0000320223", Ticker: "3033.HK", Name: "CSOP Hang Seng TECH Index ETF", AssetType: "ETF", Exchange: "HKEX", Currency: "HKD"},
	{ISIN: "HK0000447285", Ticker: "2822.HK", Name: "CSOP FTSE China A50 ETF", AssetType: "ETF", Exchange: "HKEX", Currency: "HKD"},
	{ISIN: "HK0000175542", Ticker: "2823.HK", Name: "iShares A50 China Index ETF", AssetType: "ETF", Exchange: "HKEX", Currency: "HKD"},
	{ISIN: "HK0000093390", Ticker: "2801.HK", Name: "iShares Core Hang Seng Index ETF", AssetType: "ETF", Exchange: "HKEX", Currency: "HKD"},
	{ISIN: "HK0000320215", Ticker: "3024.HK", Name: "HSBC Hang Seng TECH Index ETF", AssetType: "ETF", Exchange: "HKEX", Currency: "HKD"},
}

// Put inserts or replaces a mapping.
func (s *MemoryStore) Put(a Asset) {
	key := strings.ToUpper(strings.TrimSpace(a.ISIN))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byISIN[key]; !exists {
		s.order = append(s.order, key)
	}
	s.byISIN[key] = a
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(isin string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(isin))
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byISIN[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, isin)
	}
	return a.Ticker, nil
}

// Search implements Store.
func (s *MemoryStore) Search(query string, limit int) []Asset {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Asset
	for _, key := range s.order {
		a := s.byISIN[key]
		if strings.Contains(a.ISIN, q) ||
			strings.Contains(strings.ToUpper(a.Ticker), q) ||
			strings.Contains(strings.ToUpper(a.Name), q) {
			results = append(results, a)
			if len(results) >= limit {
				break
			}
		}
	}
	return results
}

// Len returns the number of stored mappings.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byISIN)
}
