package datasource

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/investlens/investlens/internal/isin"
	"github.com/investlens/investlens/internal/ticker"
	"github.com/investlens/investlens/pkg/models"
)

// stubSource is a scriptable DataSource for resolver tests. It records
// the symbols it was asked for.
type stubSource struct {
	name       string
	quote      *models.Quote
	financials map[string]string
	candles    []models.Candle
	err        error
	requested  []string
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) GetQuote(_ context.Context, symbol string) (*models.Quote, error) {
	s.requested = append(s.requested, symbol)
	if s.err != nil {
		return nil, s.err
	}
	q := *s.quote
	q.Symbol = symbol
	return &q, nil
}

func (s *stubSource) GetFinancials(_ context.Context, symbol string) (map[string]string, error) {
	s.requested = append(s.requested, symbol)
	if s.err != nil {
		return nil, s.err
	}
	return s.financials, nil
}

func (s *stubSource) GetMarketContext(_ context.Context) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return map[string]string{s.name: "ok"}, nil
}

func (s *stubSource) GetHistorical(_ context.Context, symbol string, _, _ time.Time, _ string) ([]models.Candle, error) {
	s.requested = append(s.requested, symbol)
	if s.err != nil {
		return nil, s.err
	}
	return s.candles, nil
}

// stubChina satisfies ChinaSource.
type stubChina struct{ stubSource }

func newTestResolver(china ChinaSource, chain ...DataSource) *Resolver {
	r := &Registry{}
	r.snap.Store(&snapshot{chain: chain, china: china})
	return NewResolver(r, ticker.NewNormalizer(isin.NewSeededStore()))
}

func TestResolverQuoteFallbackOrder(t *testing.T) {
	first := &stubSource{name: "first", err: errors.New("boom")}
	second := &stubSource{name: "second", quote: &models.Quote{Price: 42, DataSource: "second"}}
	china := &stubChina{stubSource{name: "eastmoney", err: ErrNoData}}

	rs := newTestResolver(china, first, second)
	q := rs.GetQuote(context.Background(), "AAPL")

	if !q.OK() {
		t.Fatalf("expected success, got error %q", q.Error)
	}
	if q.Price != 42 || q.DataSource != "second" {
		t.Fatalf("got %+v, want second source's quote", q)
	}
	if len(china.requested) != 0 {
		t.Fatal("US symbol must not touch the china adapter")
	}
	if len(first.requested) != 1 || len(second.requested) != 1 {
		t.Fatal("both chain sources should be tried in order")
	}
}

func TestResolverQuoteAllFail(t *testing.T) {
	first := &stubSource{name: "first", err: errors.New("timeout")}
	second := &stubSource{name: "second", err: ErrNoData}
	china := &stubChina{stubSource{name: "eastmoney", err: ErrNoData}}

	rs := newTestResolver(china, first, second)
	q := rs.GetQuote(context.Background(), "AAPL")

	if q.OK() {
		t.Fatal("expected error-shaped quote")
	}
	if q.Symbol != "AAPL" {
		t.Fatalf("got symbol %q, want AAPL", q.Symbol)
	}
	if q.Error == "" {
		t.Fatal("error field must be set")
	}
	for _, name := range []string{"first", "second"} {
		if !strings.Contains(q.Detail, name) {
			t.Errorf("failure trail missing %s: %q", name, q.Detail)
		}
	}
}

func TestResolverQuoteChinaFirst(t *testing.T) {
	chain := &stubSource{name: "yfinance", quote: &models.Quote{Price: 1}}
	china := &stubChina{stubSource{
		name:  "eastmoney",
		quote: &models.Quote{Price: 1700, DataSource: "eastmoney"},
	}}

	rs := newTestResolver(china, chain)
	q := rs.GetQuote(context.Background(), "600519")

	if q.DataSource != "eastmoney" {
		t.Fatalf("A-share should be served by eastmoney, got %s", q.DataSource)
	}
	if len(chain.requested) != 0 {
		t.Fatal("chain must not be touched when china adapter succeeds")
	}
}

func TestResolverQuoteChinaFallbackResuffixes(t *testing.T) {
	chain := &stubSource{name: "yfinance", quote: &models.Quote{Price: 5.5}}
	china := &stubChina{stubSource{name: "eastmoney", err: ErrNoData}}

	rs := newTestResolver(china, chain)
	q := rs.GetQuote(context.Background(), "600519")

	if !q.OK() {
		t.Fatalf("expected fallback success, got %q", q.Error)
	}
	if len(chain.requested) != 1 || chain.requested[0] != "600519.SS" {
		t.Fatalf("chain should see the suffixed code, got %v", chain.requested)
	}
	if q.Symbol != "600519" {
		t.Fatalf("quote symbol should stay the caller's form, got %s", q.Symbol)
	}
}

func TestResolverQuoteIndexFallbackSuffix(t *testing.T) {
	chain := &stubSource{name: "yfinance", quote: &models.Quote{Price: 4100}}
	china := &stubChina{stubSource{name: "eastmoney", err: ErrNoData}}

	rs := newTestResolver(china, chain)
	q := rs.GetQuote(context.Background(), "000300")

	if !q.OK() {
		t.Fatalf("expected fallback success, got %q", q.Error)
	}
	if len(china.requested) != 1 {
		t.Fatal("index code should try the china adapter first")
	}
	// CSI 300 publishes on Shanghai; the listing-prefix rule would
	// wrongly mark it Shenzhen.
	if len(chain.requested) != 1 || chain.requested[0] != "000300.SS" {
		t.Fatalf("chain should see the index venue suffix, got %v", chain.requested)
	}
}

func TestForeignSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"600519", "600519.SS"},
		{"159915", "159915.SZ"},
		{"000300", "000300.SS"},
		{"399001", "399001.SZ"},
		{"AAPL", "AAPL"},
		{"^GSPC", "^GSPC"},
	}
	for _, tt := range tests {
		cls := ticker.Classify(tt.symbol)
		if got := foreignSymbol(cls, tt.symbol); got != tt.want {
			t.Errorf("foreignSymbol(%s) = %s, want %s", tt.symbol, got, tt.want)
		}
	}
}

func TestResolverQuoteISIN(t *testing.T) {
	china := &stubChina{stubSource{name: "eastmoney", err: ErrNoData}}
	chain := &stubSource{name: "yfinance", quote: &models.Quote{Price: 25.4}}

	rs := newTestResolver(china, chain)
	q := rs.GetQuote(context.Background(), "HK0000181112")

	if !q.OK() {
		t.Fatalf("expected success, got %q", q.Error)
	}
	if q.Symbol != "2800.HK" {
		t.Fatalf("got %s, want resolved symbol 2800.HK", q.Symbol)
	}
}

func TestResolverQuoteUnknownISIN(t *testing.T) {
	china := &stubChina{stubSource{name: "eastmoney"}}
	rs := newTestResolver(china)

	q := rs.GetQuote(context.Background(), "US0378331005")
	if q.OK() {
		t.Fatal("unmapped ISIN should produce an error-shaped quote")
	}
}

func TestResolverHistoricalPeriodTokens(t *testing.T) {
	tests := []struct {
		period  string
		minDays int
		maxDays int
	}{
		{"5d", 6, 8},
		{"1mo", 30, 32},
		{"6mo", 182, 184},
		{"1y", 365, 367},
		{"max", 7200, 7400},
	}
	for _, tt := range tests {
		from, to, err := periodRange(tt.period)
		if err != nil {
			t.Fatalf("periodRange(%s): %v", tt.period, err)
		}
		days := int(to.Sub(from).Hours() / 24)
		if days < tt.minDays || days > tt.maxDays {
			t.Errorf("periodRange(%s) spans %d days, want [%d,%d]", tt.period, days, tt.minDays, tt.maxDays)
		}
	}

	if _, _, err := periodRange("fortnight"); err == nil {
		t.Fatal("expected error for unknown period token")
	}

	from, to, err := periodRange("ytd")
	if err != nil {
		t.Fatalf("ytd: %v", err)
	}
	if from.Month() != 1 || from.Day() != 1 || from.Year() != to.Year() {
		t.Errorf("ytd should start Jan 1 of the current year, got %v", from)
	}
}

func TestResolverHistoricalSkipsNonHistoricalSources(t *testing.T) {
	// quoteOnly lacks GetHistorical entirely.
	quoteOnly := &quoteOnlySource{name: "quotes-only"}
	withHist := &stubSource{name: "yfinance", candles: []models.Candle{{Date: "2026-08-28", Close: 100}}}
	china := &stubChina{stubSource{name: "eastmoney", err: ErrNoData}}

	rs := newTestResolver(china, quoteOnly, withHist)
	hd := rs.GetHistorical(context.Background(), "AAPL", "1mo", "1d")

	if hd.Error != "" {
		t.Fatalf("expected success, got %q", hd.Error)
	}
	if len(hd.Candles) != 1 {
		t.Fatalf("got %d candles, want 1", len(hd.Candles))
	}
}

type quoteOnlySource struct{ name string }

func (s *quoteOnlySource) Name() string { return s.name }
func (s *quoteOnlySource) GetQuote(context.Context, string) (*models.Quote, error) {
	return nil, ErrNoData
}
func (s *quoteOnlySource) GetFinancials(context.Context, string) (map[string]string, error) {
	return nil, ErrNoData
}
func (s *quoteOnlySource) GetMarketContext(context.Context) (map[string]string, error) {
	return nil, ErrNoData
}

func TestResolverFinancialsPlaceholderRejected(t *testing.T) {
	placeholder := &stubSource{name: "first", financials: map[string]string{
		"P/E Ratio": "N/A",
		"EPS":       "None",
	}}
	real := &stubSource{name: "second", financials: map[string]string{
		"P/E Ratio": "31.2",
	}}
	china := &stubChina{stubSource{name: "eastmoney", err: ErrNoData}}

	rs := newTestResolver(china, placeholder, real)
	fin, err := rs.GetFinancials(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetFinancials: %v", err)
	}
	if fin["P/E Ratio"] != "31.2" {
		t.Fatalf("placeholder map should be skipped, got %v", fin)
	}
}

func TestResolverFinancialsAllPlaceholder(t *testing.T) {
	placeholder := &stubSource{name: "first", financials: map[string]string{"EPS": "-"}}
	china := &stubChina{stubSource{name: "eastmoney", err: ErrNoData}}

	rs := newTestResolver(china, placeholder)
	if _, err := rs.GetFinancials(context.Background(), "AAPL"); !errors.Is(err, ErrNoData) {
		t.Fatalf("got %v, want ErrNoData", err)
	}
}

func TestResolverMarketContextMerges(t *testing.T) {
	us := &stubSource{name: "S&P 500 ETF"}
	china := &stubChina{stubSource{name: "Shanghai Composite"}}

	rs := newTestResolver(china, us)
	mc := rs.GetMarketContext(context.Background())

	if mc["S&P 500 ETF"] != "ok" || mc["Shanghai Composite"] != "ok" {
		t.Fatalf("expected merged context, got %v", mc)
	}
}

func TestChinaFirst(t *testing.T) {
	tests := []struct {
		symbol string
		want   bool
	}{
		{"600519", true},  // A-share
		{"510300", true},  // exchange ETF
		{"000300", true},  // mainland index
		{"510300.SS", true},
		{"2800.HK", false},
		{"^GSPC", false},
		{"AAPL", false},
	}
	for _, tt := range tests {
		cls := ticker.Classify(tt.symbol)
		if got := chinaFirst(cls, tt.symbol); got != tt.want {
			t.Errorf("chinaFirst(%s) = %v, want %v", tt.symbol, got, tt.want)
		}
	}
}
