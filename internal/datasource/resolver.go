package datasource

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/investlens/investlens/internal/ticker"
	"github.com/investlens/investlens/pkg/models"
)

// Searcher is implemented by sources that support symbol autocomplete.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.Suggestion, error)
}

// Resolver routes data requests to the right sources: China-market
// symbols go to the Eastmoney adapter first, everything else walks the
// registry's fallback chain in order. A source failure is recorded and
// the next source is tried; only when every candidate fails does the
// caller see an error.
type Resolver struct {
	reg  *Registry
	norm *ticker.Normalizer
}

// NewResolver creates a resolver over the given registry and normalizer.
func NewResolver(reg *Registry, norm *ticker.Normalizer) *Resolver {
	return &Resolver{reg: reg, norm: norm}
}

// chinaFirst reports whether a classified symbol should be served by
// the China-market adapter before the general chain. Six-digit index
// codes qualify; caret-prefixed indices do not.
func chinaFirst(cls ticker.Classification, symbol string) bool {
	if cls.IsAShare || cls.IsETF {
		return true
	}
	switch cls.Type {
	case models.AssetChinaETF, models.AssetChinaFund:
		return !strings.HasSuffix(symbol, ".HK")
	case models.AssetIndex:
		return !strings.HasPrefix(symbol, "^")
	}
	return false
}

// foreignSymbol appends the Yahoo-style suffix a non-China source needs
// for a bare domestic code. Index codes take the index venue, not the
// listing-prefix rule.
func foreignSymbol(cls ticker.Classification, symbol string) string {
	switch {
	case ticker.IsChinaIndex(symbol):
		return symbol + ticker.IndexSuffix(symbol)
	case cls.IsAShare || cls.IsETF:
		return symbol + ticker.ExchangeSuffix(symbol)
	}
	return symbol
}

// GetQuote resolves an identifier and fetches a quote, falling through
// sources until one succeeds. It never returns a Go error for data
// failures: when every source fails the Quote carries the error and the
// per-source failure trail, so API callers always get a renderable
// payload.
func (rs *Resolver) GetQuote(ctx context.Context, identifier string) *models.Quote {
	symbol, err := rs.norm.Resolve(identifier)
	if err != nil {
		return &models.Quote{
			Symbol: identifier,
			Error:  "unknown ISIN",
			Detail: err.Error(),
		}
	}

	cls := ticker.Classify(symbol)
	var trail []string

	if chinaFirst(cls, symbol) {
		if q, err := rs.reg.China().GetQuote(ctx, symbol); err == nil {
			return q
		} else {
			trail = append(trail, fmt.Sprintf("eastmoney: %v", err))
		}
	}

	chainSymbol := foreignSymbol(cls, symbol)

	for _, src := range rs.reg.Sources() {
		q, err := src.GetQuote(ctx, chainSymbol)
		if err != nil {
			trail = append(trail, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}
		q.Symbol = symbol
		return q
	}

	log.Printf("datasource/resolver: quote %s failed: %s", symbol, strings.Join(trail, "; "))
	return &models.Quote{
		Symbol: symbol,
		Error:  "all data sources failed",
		Detail: strings.Join(trail, "; "),
	}
}

// periodRange translates a period token into an absolute date range
// ending now.
func periodRange(period string) (time.Time, time.Time, error) {
	to := time.Now()
	var days int
	switch period {
	case "1d":
		days = 2
	case "5d":
		days = 7
	case "1mo", "":
		days = 31
	case "3mo":
		days = 92
	case "6mo":
		days = 183
	case "1y":
		days = 366
	case "2y":
		days = 731
	case "5y":
		days = 1827
	case "10y":
		days = 3653
	case "ytd":
		return time.Date(to.Year(), 1, 1, 0, 0, 0, 0, to.Location()), to, nil
	case "max":
		days = 365 * 20
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unsupported period %q", period)
	}
	return to.AddDate(0, 0, -days), to, nil
}

// GetHistorical fetches candles for a period token such as "6mo",
// walking the same market-first source order as GetQuote. Sources that
// do not serve historical data are skipped.
func (rs *Resolver) GetHistorical(ctx context.Context, identifier, period, interval string) *models.HistoricalData {
	symbol, err := rs.norm.Resolve(identifier)
	if err != nil {
		return &models.HistoricalData{Symbol: identifier, Period: period, Error: "unknown ISIN"}
	}

	from, to, err := periodRange(period)
	if err != nil {
		return &models.HistoricalData{Symbol: symbol, Period: period, Error: err.Error()}
	}

	cls := ticker.Classify(symbol)
	var trail []string

	if chinaFirst(cls, symbol) {
		candles, err := rs.reg.China().GetHistorical(ctx, symbol, from, to, interval)
		if err == nil {
			return &models.HistoricalData{Symbol: symbol, Period: period, Interval: interval, Candles: candles}
		}
		trail = append(trail, fmt.Sprintf("eastmoney: %v", err))
	}

	chainSymbol := foreignSymbol(cls, symbol)

	for _, src := range rs.reg.Sources() {
		hist, ok := src.(HistoricalSource)
		if !ok {
			continue
		}
		candles, err := hist.GetHistorical(ctx, chainSymbol, from, to, interval)
		if err != nil {
			trail = append(trail, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}
		return &models.HistoricalData{Symbol: symbol, Period: period, Interval: interval, Candles: candles}
	}

	log.Printf("datasource/resolver: historical %s failed: %s", symbol, strings.Join(trail, "; "))
	return &models.HistoricalData{
		Symbol: symbol,
		Period: period,
		Error:  "all data sources failed: " + strings.Join(trail, "; "),
	}
}

// usable rejects placeholder financials: an empty map, or one whose
// values are all "N/A"-style fillers, means the source had nothing
// real and the next source should be tried.
func usable(financials map[string]string) bool {
	if len(financials) == 0 {
		return false
	}
	for _, v := range financials {
		switch strings.TrimSpace(v) {
		case "", "N/A", "None", "-", "--":
		default:
			return true
		}
	}
	return false
}

// GetFinancials fetches key financial metrics with the market-first
// source order, rejecting placeholder-only responses.
func (rs *Resolver) GetFinancials(ctx context.Context, identifier string) (map[string]string, error) {
	symbol, err := rs.norm.Resolve(identifier)
	if err != nil {
		return nil, err
	}

	cls := ticker.Classify(symbol)
	var trail []string

	if chinaFirst(cls, symbol) {
		if fin, err := rs.reg.China().GetFinancials(ctx, symbol); err == nil && usable(fin) {
			return fin, nil
		} else if err != nil {
			trail = append(trail, fmt.Sprintf("eastmoney: %v", err))
		} else {
			trail = append(trail, "eastmoney: placeholder data")
		}
	}

	chainSymbol := foreignSymbol(cls, symbol)

	for _, src := range rs.reg.Sources() {
		fin, err := src.GetFinancials(ctx, chainSymbol)
		if err != nil {
			trail = append(trail, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}
		if !usable(fin) {
			trail = append(trail, fmt.Sprintf("%s: placeholder data", src.Name()))
			continue
		}
		return fin, nil
	}

	return nil, fmt.Errorf("financials %s: %w (%s)", symbol, ErrNoData, strings.Join(trail, "; "))
}

// GetMarketContext merges broad-market indicators from the chain and
// the China adapter. A failing side contributes nothing rather than
// failing the call.
func (rs *Resolver) GetMarketContext(ctx context.Context) map[string]string {
	merged := make(map[string]string)
	for _, src := range rs.reg.Sources() {
		mc, err := src.GetMarketContext(ctx)
		if err != nil {
			continue
		}
		for k, v := range mc {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	if mc, err := rs.reg.China().GetMarketContext(ctx); err == nil {
		for k, v := range mc {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	return merged
}

// Search fans the query out to every source that supports autocomplete
// and concatenates results, primary sources first.
func (rs *Resolver) Search(ctx context.Context, query string, limit int) []models.Suggestion {
	if limit <= 0 {
		limit = 10
	}
	var out []models.Suggestion
	seen := map[string]bool{}
	for _, src := range rs.reg.Sources() {
		s, ok := src.(Searcher)
		if !ok {
			continue
		}
		suggestions, err := s.Search(ctx, query, limit)
		if err != nil {
			continue
		}
		for _, sg := range suggestions {
			if seen[sg.Ticker] || len(out) >= limit {
				continue
			}
			seen[sg.Ticker] = true
			out = append(out, sg)
		}
	}
	return out
}
