// Package ticker classifies raw asset identifiers (ISINs, China 6-digit
// codes, suffixed symbols, index codes) and resolves ISINs to tradable
// tickers via the isin.Store collaborator.
package ticker

import (
	"strings"

	"github.com/investlens/investlens/internal/isin"
	"github.com/investlens/investlens/pkg/models"
)

// ETFPrefixes lists the leading digits of 6-digit codes treated as
// exchange-traded funds (Shanghai 5xxxxx, Shenzhen 1xxxxx). The mapping
// is a heuristic, not a normative rule; callers with better listing data
// may replace it.
var ETFPrefixes = []string{"5", "1"}

// ASharePrefixes lists the leading digits of 6-digit codes treated as
// mainland A-share stocks for quote routing.
var ASharePrefixes = []string{"0", "3", "6"}

// indexSymbols is the fixed set of well-known index codes.
var indexSymbols = map[string]bool{
	// US
	"^GSPC": true, "^DJI": true, "^IXIC": true, "^NDX": true, "^RUT": true,
	// China
	"000300": true, "000016": true, "000905": true, "399006": true, "399001": true,
	// Hong Kong
	"^HSI": true, "^HSCE": true,
}

// Classification is the result of classifying one identifier. The two
// six-digit rules are not mutually exclusive: a code can be ETF-eligible
// for holdings routing and A-share-eligible for quote routing at once,
// so eligibility is carried alongside the primary type.
type Classification struct {
	Type     models.AssetType
	IsAShare bool // 6-digit code routed to the China market adapter first
	IsETF    bool // 6-digit code eligible for ETF holdings routing
}

// Classify derives an asset classification from the shape of the
// identifier alone. Rules are applied in priority order; ISIN detection
// here is shape-only (resolution happens in Resolver.Resolve).
func Classify(identifier string) Classification {
	sym := strings.ToUpper(strings.TrimSpace(identifier))

	if IsISIN(sym) {
		// The mapped ticker decides the real type; until resolved the
		// identifier itself tells us nothing more.
		return Classification{Type: models.AssetUnknown}
	}

	if isSixDigit(sym) {
		c := Classification{
			IsETF:    hasAnyPrefix(sym, ETFPrefixes),
			IsAShare: hasAnyPrefix(sym, ASharePrefixes),
		}
		switch {
		case indexSymbols[sym]:
			c.Type = models.AssetIndex
		case c.IsETF:
			c.Type = models.AssetChinaETF
		default:
			c.Type = models.AssetChinaFund
		}
		return c
	}

	if strings.HasSuffix(sym, ".HK") {
		return Classification{Type: models.AssetHKETF}
	}
	if strings.HasSuffix(sym, ".SS") || strings.HasSuffix(sym, ".SZ") {
		return Classification{Type: models.AssetChinaETF}
	}
	if indexSymbols[sym] || strings.HasPrefix(sym, "^") {
		return Classification{Type: models.AssetIndex}
	}

	return Classification{Type: models.AssetUnknown}
}

// IsISIN reports whether the identifier is shaped like an ISIN:
// 12 characters with a 2-letter country prefix.
func IsISIN(identifier string) bool {
	s := strings.TrimSpace(identifier)
	if len(s) != 12 {
		return false
	}
	return isAlpha(s[0]) && isAlpha(s[1])
}

// IsAShare reports whether the identifier is a mainland A-share code
// (6 digits starting 0/3/6).
func IsAShare(identifier string) bool {
	s := strings.TrimSpace(identifier)
	return isSixDigit(s) && hasAnyPrefix(s, ASharePrefixes)
}

// ExchangeSuffix returns the Yahoo-style exchange suffix for a 6-digit
// domestic code: Shanghai for 5/6/9 prefixes, Shenzhen otherwise.
func ExchangeSuffix(code string) string {
	if len(code) == 0 {
		return ""
	}
	switch code[0] {
	case '5', '6', '9':
		return ".SS"
	default:
		return ".SZ"
	}
}

// IsChinaIndex reports whether the code is a known mainland benchmark
// index. These are 6 digits and collide with the stock code space, so
// they need venue routing of their own.
func IsChinaIndex(code string) bool {
	s := strings.ToUpper(strings.TrimSpace(code))
	return isSixDigit(s) && indexSymbols[s]
}

// IndexSuffix returns the Yahoo-style suffix for a mainland index code.
// Index codes do not follow the listing-prefix rule: CSI benchmarks
// publish on Shanghai, 399-prefixed ones on Shenzhen.
func IndexSuffix(code string) string {
	if strings.HasPrefix(code, "399") {
		return ".SZ"
	}
	return ".SS"
}

// Normalizer resolves identifiers to tradable tickers.
type Normalizer struct {
	store isin.Store
}

// NewNormalizer creates a normalizer backed by the given ISIN store.
func NewNormalizer(store isin.Store) *Normalizer {
	return &Normalizer{store: store}
}

// Resolve converts an identifier to a tradable ticker. For ISINs it
// consults the store; a missing mapping returns isin.ErrNotFound together
// with the original identifier so callers can retry it verbatim.
// Non-ISIN identifiers are returned uppercased and trimmed.
func (n *Normalizer) Resolve(identifier string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(identifier))
	if !IsISIN(sym) {
		return sym, nil
	}

	mapped, err := n.store.Lookup(sym)
	if err != nil {
		return sym, err
	}
	return mapped, nil
}

func isSixDigit(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isAlpha(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
