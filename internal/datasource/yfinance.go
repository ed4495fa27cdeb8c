package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/investlens/investlens/pkg/models"
)

// YFinance implements DataSource using the Yahoo Finance JSON API.
// It is the general-purpose "always available" adapter and the final
// fallback in the registry order.
type YFinance struct {
	cache   *Cache
	limiter *RateLimiter
}

// NewYFinance creates a new Yahoo Finance data source.
func NewYFinance() *YFinance {
	return &YFinance{
		cache:   NewCache(30 * time.Second),
		limiter: NewRateLimiter(5, time.Second), // 5 req/s
	}
}

// Name returns the data source name.
func (y *YFinance) Name() string { return "yfinance" }

// --- Yahoo Finance API types ---

type yfQuoteResponse struct {
	QuoteResponse struct {
		Result []yfQuoteResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"quoteResponse"`
}

type yfQuoteResult struct {
	Symbol                     string  `json:"symbol"`
	ShortName                  string  `json:"shortName"`
	LongName                   string  `json:"longName"`
	Currency                   string  `json:"currency"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
	RegularMarketVolume        int64   `json:"regularMarketVolume"`
	MarketCap                  float64 `json:"marketCap"`
	TrailingPE                 float64 `json:"trailingPE"`
}

type yfChartResponse struct {
	Chart struct {
		Result []yfChartResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"chart"`
}

type yfChartResult struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type yfSummaryResponse struct {
	QuoteSummary struct {
		Result []map[string]map[string]any `json:"result"`
		Error  *yfError                    `json:"error"`
	} `json:"quoteSummary"`
}

type yfSearchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

type yfError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// --- Public methods ---

// GetQuote returns a real-time quote from Yahoo Finance.
func (y *YFinance) GetQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))

	cacheKey := "quote:" + symbol
	if cached, ok := y.cache.Get(cacheKey); ok {
		return cached.(*models.Quote), nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("https://query1.finance.yahoo.com/v7/finance/quote?symbols=%s", url.QueryEscape(symbol))
	body, _, err := doGet(ctx, u, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("yfinance quote %s: %w", symbol, err)
	}
	defer body.Close()

	var resp yfQuoteResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("yfinance quote %s: decode: %w", symbol, err)
	}
	if resp.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("yfinance quote %s: %s", symbol, resp.QuoteResponse.Error.Description)
	}
	if len(resp.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("yfinance quote %s: %w", symbol, ErrNoData)
	}

	r := resp.QuoteResponse.Result[0]
	if r.RegularMarketPrice == 0 {
		return nil, fmt.Errorf("yfinance quote %s: %w", symbol, ErrNoData)
	}

	name := r.ShortName
	if name == "" {
		name = r.LongName
	}
	if name == "" {
		name = symbol
	}
	currency := r.Currency
	if currency == "" {
		currency = "USD"
	}

	// change_percent stays 0 when no previous close exists.
	var change, changePct float64
	if r.RegularMarketPreviousClose != 0 {
		change = r.RegularMarketPrice - r.RegularMarketPreviousClose
		changePct = change / r.RegularMarketPreviousClose * 100
	}

	quote := &models.Quote{
		Symbol:        symbol,
		Price:         round2(r.RegularMarketPrice),
		Change:        round2(change),
		ChangePercent: round2(changePct),
		Currency:      currency,
		Name:          name,
		Volume:        r.RegularMarketVolume,
		MarketCap:     r.MarketCap,
		PERatio:       r.TrailingPE,
		DataSource:    y.Name(),
	}

	y.cache.Set(cacheKey, quote)
	return quote, nil
}

// GetHistorical returns OHLCV candles from the Yahoo chart API.
func (y *YFinance) GetHistorical(ctx context.Context, ticker string, from, to time.Time, interval string) ([]models.Candle, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	if interval == "" {
		interval = "1d"
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf(
		"https://query1.finance.yahoo.com/v8/finance/chart/%s?period1=%d&period2=%d&interval=%s&events=history",
		url.PathEscape(symbol), from.Unix(), to.Unix(), url.QueryEscape(interval),
	)
	body, _, err := doGet(ctx, u, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("yfinance chart %s: %w", symbol, err)
	}
	defer body.Close()

	var resp yfChartResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("yfinance chart %s: decode: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yfinance chart %s: %s", symbol, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yfinance chart %s: %w", symbol, ErrNoData)
	}

	r := resp.Chart.Result[0]
	ohlcv := r.Indicators.Quote[0]

	candles := make([]models.Candle, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(ohlcv.Close) || ohlcv.Close[i] == nil {
			continue // market holiday or partial bar
		}
		c := models.Candle{
			Date:  time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Close: round2(*ohlcv.Close[i]),
		}
		if i < len(ohlcv.Open) && ohlcv.Open[i] != nil {
			c.Open = round2(*ohlcv.Open[i])
		}
		if i < len(ohlcv.High) && ohlcv.High[i] != nil {
			c.High = round2(*ohlcv.High[i])
		}
		if i < len(ohlcv.Low) && ohlcv.Low[i] != nil {
			c.Low = round2(*ohlcv.Low[i])
		}
		if i < len(ohlcv.Volume) && ohlcv.Volume[i] != nil {
			c.Volume = *ohlcv.Volume[i]
		}
		candles = append(candles, c)
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("yfinance chart %s: %w", symbol, ErrNoData)
	}
	return candles, nil
}

// summaryFields maps quoteSummary module fields to the metric names used
// in analysis prompts.
var summaryFields = []struct {
	module, field, label string
}{
	{"summaryProfile", "sector", "Sector"},
	{"summaryProfile", "industry", "Industry"},
	{"summaryProfile", "longBusinessSummary", "Description"},
	{"defaultKeyStatistics", "trailingEps", "EPS"},
	{"defaultKeyStatistics", "pegRatio", "PEG Ratio"},
	{"defaultKeyStatistics", "priceToBook", "Price To Book"},
	{"defaultKeyStatistics", "beta", "Beta"},
	{"financialData", "totalRevenue", "Revenue TTM"},
	{"financialData", "ebitda", "EBITDA"},
	{"financialData", "profitMargins", "Profit Margin"},
	{"financialData", "operatingMargins", "Operating Margin"},
	{"financialData", "returnOnEquity", "Return On Equity"},
	{"financialData", "returnOnAssets", "Return On Assets"},
}

// GetFinancials returns key financial metrics from the quoteSummary API.
func (y *YFinance) GetFinancials(ctx context.Context, ticker string) (map[string]string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))

	cacheKey := "financials:" + symbol
	if cached, ok := y.cache.Get(cacheKey); ok {
		return cached.(map[string]string), nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf(
		"https://query1.finance.yahoo.com/v10/finance/quoteSummary/%s?modules=summaryProfile,defaultKeyStatistics,financialData",
		url.PathEscape(symbol),
	)
	body, _, err := doGet(ctx, u, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("yfinance financials %s: %w", symbol, err)
	}
	defer body.Close()

	var resp yfSummaryResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("yfinance financials %s: decode: %w", symbol, err)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return map[string]string{}, nil
	}

	modules := resp.QuoteSummary.Result[0]
	financials := make(map[string]string)
	for _, f := range summaryFields {
		mod, ok := modules[f.module]
		if !ok {
			continue
		}
		financials[f.label] = formatSummaryValue(mod[f.field])
	}

	// quoteSummary values with raw/fmt envelopes may all be missing for
	// funds and indices; drop empty entries rather than reporting "N/A".
	for k, v := range financials {
		if v == "" {
			delete(financials, k)
		}
	}

	y.cache.SetWithTTL(cacheKey, financials, 10*time.Minute)
	return financials, nil
}

// formatSummaryValue renders a quoteSummary field, unwrapping the
// {raw, fmt} envelope Yahoo uses for numeric values.
func formatSummaryValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	case map[string]any:
		if f, ok := val["fmt"].(string); ok && f != "" {
			return f
		}
		if raw, ok := val["raw"].(float64); ok {
			return fmt.Sprintf("%g", raw)
		}
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// marketIndices lists the broad-market symbols reported by GetMarketContext.
var marketIndices = []struct {
	symbol, label string
}{
	{"SPY", "S&P 500 ETF"},
	{"^VIX", "Volatility Index"},
}

// GetMarketContext returns US broad-market indicators formatted as
// "price (+x.xx%)". An unreachable index is reported as "Data Unavailable"
// rather than omitted.
func (y *YFinance) GetMarketContext(ctx context.Context) (map[string]string, error) {
	context := make(map[string]string, len(marketIndices))
	for _, idx := range marketIndices {
		q, err := y.GetQuote(ctx, idx.symbol)
		if err != nil || !q.OK() {
			context[idx.label] = "Data Unavailable"
			continue
		}
		context[idx.label] = fmt.Sprintf("%.2f (%+.2f%%)", q.Price, q.ChangePercent)
	}
	return context, nil
}

// Search queries the Yahoo Finance symbol search endpoint for
// autocomplete suggestions.
func (y *YFinance) Search(ctx context.Context, query string, limit int) ([]models.Suggestion, error) {
	if limit <= 0 {
		limit = 10
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf(
		"https://query2.finance.yahoo.com/v1/finance/search?q=%s&quotesCount=%d&newsCount=0&enableFuzzyQuery=false",
		url.QueryEscape(query), limit,
	)
	body, _, err := doGet(ctx, u, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("yfinance search %q: %w", query, err)
	}
	defer body.Close()

	var resp yfSearchResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("yfinance search %q: decode: %w", query, err)
	}

	suggestions := make([]models.Suggestion, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		if q.Symbol == "" {
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		suggestions = append(suggestions, models.Suggestion{
			Ticker:    q.Symbol,
			Name:      name,
			Exchange:  q.Exchange,
			AssetType: q.QuoteType,
			Source:    y.Name(),
		})
	}
	return suggestions, nil
}
