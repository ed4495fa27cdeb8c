package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/investlens/investlens/pkg/models"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// AlphaVantage implements DataSource using the Alpha Vantage REST API.
// The free tier is limited to 25 requests/day, so responses are cached
// aggressively and the adapter disables itself when no API key is set.
type AlphaVantage struct {
	client  *resty.Client
	apiKey  string
	cache   *Cache
	limiter *RateLimiter
}

// NewAlphaVantage creates an Alpha Vantage data source. An empty apiKey
// yields an adapter whose methods return ErrNotConfigured.
func NewAlphaVantage(apiKey, baseURL string) *AlphaVantage {
	if baseURL == "" {
		baseURL = alphaVantageBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", DefaultUserAgent)
	return &AlphaVantage{
		client:  client,
		apiKey:  apiKey,
		cache:   NewCache(5 * time.Minute),
		limiter: NewRateLimiter(1, 15*time.Second), // ~5 req/min free tier
	}
}

// Name returns the data source name.
func (a *AlphaVantage) Name() string { return "alphavantage" }

// Configured reports whether an API key is available.
func (a *AlphaVantage) Configured() bool { return a.apiKey != "" }

type avGlobalQuote struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		PreviousClose string `json:"08. previous close"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

type avSearchResponse struct {
	BestMatches []map[string]string `json:"bestMatches"`
}

// GetQuote returns a quote from the GLOBAL_QUOTE endpoint.
func (a *AlphaVantage) GetQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	if !a.Configured() {
		return nil, ErrNotConfigured
	}
	symbol := strings.ToUpper(strings.TrimSpace(ticker))

	cacheKey := "quote:" + symbol
	if cached, ok := a.cache.Get(cacheKey); ok {
		return cached.(*models.Quote), nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp avGlobalQuote
	r, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": "GLOBAL_QUOTE",
			"symbol":   symbol,
			"apikey":   a.apiKey,
		}).
		SetResult(&resp).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("alphavantage quote %s: %w", symbol, err)
	}
	if r.IsError() {
		return nil, fmt.Errorf("alphavantage quote %s: %w", symbol, &ErrHTTP{StatusCode: r.StatusCode(), Status: r.Status()})
	}
	if resp.Note != "" || resp.Information != "" {
		// Rate limit or plan notice instead of data.
		return nil, fmt.Errorf("alphavantage quote %s: %w", symbol, ErrNoData)
	}

	gq := resp.GlobalQuote
	price, err := strconv.ParseFloat(gq.Price, 64)
	if err != nil || price == 0 {
		return nil, fmt.Errorf("alphavantage quote %s: %w", symbol, ErrNoData)
	}
	change, _ := strconv.ParseFloat(gq.Change, 64)
	changePct, _ := strconv.ParseFloat(strings.TrimSuffix(gq.ChangePercent, "%"), 64)
	volume, _ := strconv.ParseInt(gq.Volume, 10, 64)

	quote := &models.Quote{
		Symbol:        symbol,
		Price:         round2(price),
		Change:        round2(change),
		ChangePercent: round2(changePct),
		Currency:      "USD",
		Name:          symbol,
		Volume:        volume,
		DataSource:    a.Name(),
	}

	a.cache.Set(cacheKey, quote)
	return quote, nil
}

// GetHistorical returns daily candles from TIME_SERIES_DAILY. The
// interval parameter is ignored; Alpha Vantage daily data is the only
// granularity this adapter serves.
func (a *AlphaVantage) GetHistorical(ctx context.Context, ticker string, from, to time.Time, interval string) ([]models.Candle, error) {
	if !a.Configured() {
		return nil, ErrNotConfigured
	}
	symbol := strings.ToUpper(strings.TrimSpace(ticker))

	outputSize := "compact"
	if time.Since(from) > 100*24*time.Hour {
		outputSize = "full"
	}

	cacheKey := "hist:" + symbol + ":" + outputSize
	var series map[string]map[string]string
	if cached, ok := a.cache.Get(cacheKey); ok {
		series = cached.(map[string]map[string]string)
	} else {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var resp map[string]json.RawMessage
		r, err := a.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"function":   "TIME_SERIES_DAILY",
				"symbol":     symbol,
				"outputsize": outputSize,
				"apikey":     a.apiKey,
			}).
			SetResult(&resp).
			Get("")
		if err != nil {
			return nil, fmt.Errorf("alphavantage historical %s: %w", symbol, err)
		}
		if r.IsError() {
			return nil, fmt.Errorf("alphavantage historical %s: %w", symbol, &ErrHTTP{StatusCode: r.StatusCode(), Status: r.Status()})
		}
		raw, ok := resp["Time Series (Daily)"]
		if !ok {
			return nil, fmt.Errorf("alphavantage historical %s: %w", symbol, ErrNoData)
		}
		if err := json.Unmarshal(raw, &series); err != nil {
			return nil, fmt.Errorf("alphavantage historical %s: decode: %w", symbol, err)
		}
		a.cache.SetWithTTL(cacheKey, series, time.Hour)
	}

	fromDay := from.Format("2006-01-02")
	toDay := to.Format("2006-01-02")

	candles := make([]models.Candle, 0, len(series))
	for date, bar := range series {
		if date < fromDay || date > toDay {
			continue
		}
		open, _ := strconv.ParseFloat(bar["1. open"], 64)
		high, _ := strconv.ParseFloat(bar["2. high"], 64)
		low, _ := strconv.ParseFloat(bar["3. low"], 64)
		closeP, _ := strconv.ParseFloat(bar["4. close"], 64)
		volume, _ := strconv.ParseInt(bar["5. volume"], 10, 64)
		candles = append(candles, models.Candle{
			Date:   date,
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(closeP),
			Volume: volume,
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("alphavantage historical %s: %w", symbol, ErrNoData)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Date < candles[j].Date })
	return candles, nil
}

// overviewFields maps OVERVIEW response keys to metric labels.
var overviewFields = []struct{ key, label string }{
	{"Sector", "Sector"},
	{"Industry", "Industry"},
	{"MarketCapitalization", "Market Cap"},
	{"PERatio", "P/E Ratio"},
	{"PEGRatio", "PEG Ratio"},
	{"EPS", "EPS"},
	{"ProfitMargin", "Profit Margin"},
	{"OperatingMarginTTM", "Operating Margin"},
	{"ReturnOnEquityTTM", "Return On Equity"},
	{"RevenueTTM", "Revenue TTM"},
	{"EBITDA", "EBITDA"},
	{"DividendYield", "Dividend Yield"},
	{"Beta", "Beta"},
	{"52WeekHigh", "52 Week High"},
	{"52WeekLow", "52 Week Low"},
}

// GetFinancials returns company fundamentals from the OVERVIEW endpoint.
func (a *AlphaVantage) GetFinancials(ctx context.Context, ticker string) (map[string]string, error) {
	if !a.Configured() {
		return nil, ErrNotConfigured
	}
	symbol := strings.ToUpper(strings.TrimSpace(ticker))

	cacheKey := "financials:" + symbol
	if cached, ok := a.cache.Get(cacheKey); ok {
		return cached.(map[string]string), nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp map[string]string
	r, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": "OVERVIEW",
			"symbol":   symbol,
			"apikey":   a.apiKey,
		}).
		SetResult(&resp).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("alphavantage financials %s: %w", symbol, err)
	}
	if r.IsError() {
		return nil, fmt.Errorf("alphavantage financials %s: %w", symbol, &ErrHTTP{StatusCode: r.StatusCode(), Status: r.Status()})
	}
	if resp["Symbol"] == "" {
		return nil, fmt.Errorf("alphavantage financials %s: %w", symbol, ErrNoData)
	}

	financials := make(map[string]string)
	for _, f := range overviewFields {
		if v := resp[f.key]; v != "" && v != "None" && v != "-" {
			financials[f.label] = v
		}
	}

	a.cache.SetWithTTL(cacheKey, financials, time.Hour)
	return financials, nil
}

// GetMarketContext is not supported; Alpha Vantage has no index quote
// endpoint on the free tier.
func (a *AlphaVantage) GetMarketContext(ctx context.Context) (map[string]string, error) {
	return nil, ErrNoData
}

// Search queries SYMBOL_SEARCH for ticker suggestions.
func (a *AlphaVantage) Search(ctx context.Context, query string, limit int) ([]models.Suggestion, error) {
	if !a.Configured() {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 10
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp avSearchResponse
	r, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": "SYMBOL_SEARCH",
			"keywords": query,
			"apikey":   a.apiKey,
		}).
		SetResult(&resp).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("alphavantage search %q: %w", query, err)
	}
	if r.IsError() {
		return nil, fmt.Errorf("alphavantage search %q: %w", query, &ErrHTTP{StatusCode: r.StatusCode(), Status: r.Status()})
	}

	suggestions := make([]models.Suggestion, 0, limit)
	for _, m := range resp.BestMatches {
		if len(suggestions) >= limit {
			break
		}
		if m["1. symbol"] == "" {
			continue
		}
		suggestions = append(suggestions, models.Suggestion{
			Ticker:   m["1. symbol"],
			Name:     m["2. name"],
			Exchange: m["4. region"],
			Source:   a.Name(),
		})
	}
	return suggestions, nil
}
