package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/investlens/investlens/internal/ticker"
	"github.com/investlens/investlens/pkg/models"
)

// Eastmoney implements DataSource for mainland China A-shares, ETFs and
// open-ended funds using the Eastmoney push2 quote API. It is held by
// the registry separately from the fallback chain and is the preferred
// source for China-market symbols.
type Eastmoney struct {
	quoteCache *Cache // 60s, quotes move intraday
	nameCache  *Cache // 24h, code to display name
	limiter    *RateLimiter
}

// NewEastmoney creates an Eastmoney data source.
func NewEastmoney() *Eastmoney {
	return &Eastmoney{
		quoteCache: NewCache(60 * time.Second),
		nameCache:  NewCache(24 * time.Hour),
		limiter:    NewRateLimiter(10, time.Second),
	}
}

// Name returns the data source name.
func (e *Eastmoney) Name() string { return "eastmoney" }

// secID builds the push2 "market.code" identifier. Shanghai listings
// (codes starting 5, 6 or 9) are market 1, Shenzhen market 0. Known
// index codes bypass the listing-prefix rule: CSI 300's 000300 would
// otherwise resolve to the Shenzhen stock with the same code.
func secID(code string) string {
	if ticker.IsChinaIndex(code) {
		return indexSecID(code)
	}
	if ticker.ExchangeSuffix(code) == ".SS" {
		return "1." + code
	}
	return "0." + code
}

// indexSecID maps a mainland index code to its push2 secid. The SH
// composite shares code 000001 with a Shenzhen stock, so index venue
// comes from the 399 prefix alone.
func indexSecID(code string) string {
	if strings.HasPrefix(code, "399") {
		return "0." + code
	}
	return "1." + code
}

// bareCode strips a .SS/.SZ suffix so suffixed and bare forms of the
// same listing hit the same Eastmoney record.
func bareCode(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	symbol = strings.TrimSuffix(symbol, ".SS")
	symbol = strings.TrimSuffix(symbol, ".SZ")
	return symbol
}

type emStockResponse struct {
	Data *struct {
		Code      string  `json:"f57"`
		Name      string  `json:"f58"`
		Price     float64 `json:"f43"`  // x100
		Change    float64 `json:"f169"` // x100
		ChangePct float64 `json:"f170"` // x100
		Volume    int64   `json:"f47"`
		MarketCap float64 `json:"f116"`
		PERatio   float64 `json:"f162"` // x100
		PBRatio   float64 `json:"f167"` // x100
		High52w   float64 `json:"f174"` // x100
		Low52w    float64 `json:"f175"` // x100
		Turnover  float64 `json:"f168"` // x100
		EPS       float64 `json:"f55"`
	} `json:"data"`
}

func (e *Eastmoney) fetchStock(ctx context.Context, code string) (*emStockResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := fmt.Sprintf(
		"https://push2.eastmoney.com/api/qt/stock/get?secid=%s&fields=f43,f47,f55,f57,f58,f116,f162,f167,f168,f169,f170,f174,f175",
		secID(code),
	)
	body, _, err := doGet(ctx, u, map[string]string{
		"Accept":  "application/json",
		"Referer": "https://quote.eastmoney.com/",
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp emStockResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &resp, nil
}

// GetQuote returns a real-time quote for a China-market symbol. Codes
// not tradable on the exchanges (open-ended funds) fall through to the
// fund NAV endpoint.
func (e *Eastmoney) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	code := bareCode(symbol)

	cacheKey := "quote:" + code
	if cached, ok := e.quoteCache.Get(cacheKey); ok {
		return cached.(*models.Quote), nil
	}

	resp, err := e.fetchStock(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("eastmoney quote %s: %w", code, err)
	}
	if resp.Data == nil || resp.Data.Price == 0 {
		if q, ferr := e.fundNav(ctx, code); ferr == nil {
			e.quoteCache.Set(cacheKey, q)
			return q, nil
		}
		return nil, fmt.Errorf("eastmoney quote %s: %w", code, ErrNoData)
	}

	d := resp.Data
	quote := &models.Quote{
		Symbol:        code,
		Price:         round2(d.Price / 100),
		Change:        round2(d.Change / 100),
		ChangePercent: round2(d.ChangePct / 100),
		Currency:      "CNY",
		Name:          d.Name,
		Volume:        d.Volume,
		MarketCap:     d.MarketCap,
		PERatio:       round2(d.PERatio / 100),
		DataSource:    e.Name(),
	}

	e.quoteCache.Set(cacheKey, quote)
	if d.Name != "" {
		e.nameCache.Set("name:"+code, d.Name)
	}
	return quote, nil
}

var fundNavRe = regexp.MustCompile(`jsonpgz\((.*)\);?\s*$`)

type emFundNav struct {
	Code     string `json:"fundcode"`
	Name     string `json:"name"`
	Nav      string `json:"gsz"`   // estimated NAV
	NavPct   string `json:"gszzl"` // estimated change percent
	PrevNav  string `json:"dwjz"`  // last published unit NAV
	NavTime  string `json:"gztime"`
	PrevDate string `json:"jzrq"`
}

// fundNav quotes an open-ended fund via the fundgz JSONP endpoint.
func (e *Eastmoney) fundNav(ctx context.Context, code string) (*models.Quote, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("https://fundgz.1234567.com.cn/js/%s.js", code)
	body, _, err := doGet(ctx, u, map[string]string{"Referer": "https://fund.eastmoney.com/"})
	if err != nil {
		return nil, fmt.Errorf("eastmoney fund %s: %w", code, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("eastmoney fund %s: %w", code, err)
	}
	m := fundNavRe.FindSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("eastmoney fund %s: %w", code, ErrNoData)
	}

	var nav emFundNav
	if err := json.Unmarshal(m[1], &nav); err != nil {
		return nil, fmt.Errorf("eastmoney fund %s: decode: %w", code, err)
	}

	price, err := strconv.ParseFloat(nav.Nav, 64)
	if err != nil || price == 0 {
		price, err = strconv.ParseFloat(nav.PrevNav, 64)
		if err != nil || price == 0 {
			return nil, fmt.Errorf("eastmoney fund %s: %w", code, ErrNoData)
		}
	}
	changePct, _ := strconv.ParseFloat(nav.NavPct, 64)
	prev, _ := strconv.ParseFloat(nav.PrevNav, 64)

	var change float64
	if prev != 0 {
		change = price - prev
	}

	return &models.Quote{
		Symbol:        code,
		Price:         round2(price),
		Change:        round2(change),
		ChangePercent: round2(changePct),
		Currency:      "CNY",
		Name:          nav.Name,
		DataSource:    e.Name(),
	}, nil
}

type emKlineResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"` // "date,open,close,high,low,volume,..."
	} `json:"data"`
}

// GetHistorical returns daily candles from the push2 kline API. Only
// daily bars are served; the interval parameter is ignored.
func (e *Eastmoney) GetHistorical(ctx context.Context, symbol string, from, to time.Time, interval string) ([]models.Candle, error) {
	code := bareCode(symbol)

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := fmt.Sprintf(
		"https://push2his.eastmoney.com/api/qt/stock/kline/get?secid=%s&klt=101&fqt=1&beg=%s&end=%s&fields1=f1,f2,f3&fields2=f51,f52,f53,f54,f55,f56",
		secID(code), from.Format("20060102"), to.Format("20060102"),
	)
	body, _, err := doGet(ctx, u, map[string]string{
		"Accept":  "application/json",
		"Referer": "https://quote.eastmoney.com/",
	})
	if err != nil {
		return nil, fmt.Errorf("eastmoney kline %s: %w", code, err)
	}
	defer body.Close()

	var resp emKlineResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("eastmoney kline %s: decode: %w", code, err)
	}
	if resp.Data == nil || len(resp.Data.Klines) == 0 {
		return nil, fmt.Errorf("eastmoney kline %s: %w", code, ErrNoData)
	}

	candles := make([]models.Candle, 0, len(resp.Data.Klines))
	for _, line := range resp.Data.Klines {
		parts := strings.Split(line, ",")
		if len(parts) < 6 {
			continue
		}
		open, _ := strconv.ParseFloat(parts[1], 64)
		closeP, _ := strconv.ParseFloat(parts[2], 64)
		high, _ := strconv.ParseFloat(parts[3], 64)
		low, _ := strconv.ParseFloat(parts[4], 64)
		volume, _ := strconv.ParseInt(parts[5], 10, 64)
		candles = append(candles, models.Candle{
			Date:   parts[0],
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: volume,
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("eastmoney kline %s: %w", code, ErrNoData)
	}
	return candles, nil
}

// GetFinancials returns valuation metrics from the push2 quote record.
func (e *Eastmoney) GetFinancials(ctx context.Context, symbol string) (map[string]string, error) {
	code := bareCode(symbol)

	resp, err := e.fetchStock(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("eastmoney financials %s: %w", code, err)
	}
	if resp.Data == nil || resp.Data.Price == 0 {
		return nil, fmt.Errorf("eastmoney financials %s: %w", code, ErrNoData)
	}

	d := resp.Data
	financials := map[string]string{}
	if d.PERatio != 0 {
		financials["P/E Ratio"] = fmt.Sprintf("%.2f", d.PERatio/100)
	}
	if d.PBRatio != 0 {
		financials["Price To Book"] = fmt.Sprintf("%.2f", d.PBRatio/100)
	}
	if d.EPS != 0 {
		financials["EPS"] = fmt.Sprintf("%.2f", d.EPS)
	}
	if d.MarketCap != 0 {
		financials["Market Cap"] = fmt.Sprintf("%.0f", d.MarketCap)
	}
	if d.Turnover != 0 {
		financials["Turnover Rate"] = fmt.Sprintf("%.2f%%", d.Turnover/100)
	}
	if d.High52w != 0 {
		financials["52 Week High"] = fmt.Sprintf("%.2f", d.High52w/100)
	}
	if d.Low52w != 0 {
		financials["52 Week Low"] = fmt.Sprintf("%.2f", d.Low52w/100)
	}
	return financials, nil
}

// chinaIndices lists the mainland benchmarks reported by GetMarketContext.
var chinaIndices = []struct{ code, label string }{
	{"000001", "Shanghai Composite"},
	{"399001", "Shenzhen Component"},
	{"000300", "CSI 300"},
}

// GetMarketContext returns mainland benchmark levels formatted as
// "price (+x.xx%)".
func (e *Eastmoney) GetMarketContext(ctx context.Context) (map[string]string, error) {
	context := make(map[string]string, len(chinaIndices))
	for _, idx := range chinaIndices {
		q, err := e.quoteBySecID(ctx, indexSecID(idx.code), idx.code)
		if err != nil || !q.OK() {
			context[idx.label] = "Data Unavailable"
			continue
		}
		context[idx.label] = fmt.Sprintf("%.2f (%+.2f%%)", q.Price, q.ChangePercent)
	}
	return context, nil
}

// quoteBySecID fetches a quote with an explicit market prefix.
func (e *Eastmoney) quoteBySecID(ctx context.Context, sec, code string) (*models.Quote, error) {
	cacheKey := "quote:sec:" + sec
	if cached, ok := e.quoteCache.Get(cacheKey); ok {
		return cached.(*models.Quote), nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := fmt.Sprintf(
		"https://push2.eastmoney.com/api/qt/stock/get?secid=%s&fields=f43,f57,f58,f169,f170",
		sec,
	)
	body, _, err := doGet(ctx, u, map[string]string{
		"Accept":  "application/json",
		"Referer": "https://quote.eastmoney.com/",
	})
	if err != nil {
		return nil, fmt.Errorf("eastmoney index %s: %w", code, err)
	}
	defer body.Close()

	var resp emStockResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("eastmoney index %s: decode: %w", code, err)
	}
	if resp.Data == nil || resp.Data.Price == 0 {
		return nil, fmt.Errorf("eastmoney index %s: %w", code, ErrNoData)
	}

	d := resp.Data
	quote := &models.Quote{
		Symbol:        code,
		Price:         round2(d.Price / 100),
		Change:        round2(d.Change / 100),
		ChangePercent: round2(d.ChangePct / 100),
		Currency:      "CNY",
		Name:          d.Name,
		DataSource:    e.Name(),
	}
	e.quoteCache.Set(cacheKey, quote)
	return quote, nil
}

// DisplayName returns the cached Chinese display name for a code,
// fetching a quote when the name has not been seen today.
func (e *Eastmoney) DisplayName(ctx context.Context, symbol string) string {
	code := bareCode(symbol)
	if cached, ok := e.nameCache.Get("name:" + code); ok {
		return cached.(string)
	}
	q, err := e.GetQuote(ctx, code)
	if err != nil || q.Name == "" {
		return code
	}
	return q.Name
}
