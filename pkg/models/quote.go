// Package models defines the core data structures used throughout InvestLens.
package models

// AssetType tags an identifier with its detected market/asset class.
// It is advisory: resolvers may retry with another type on an empty result.
type AssetType string

const (
	AssetChinaFund AssetType = "china_fund"
	AssetChinaETF  AssetType = "china_etf"
	AssetUSETF     AssetType = "us_etf"
	AssetHKETF     AssetType = "hk_etf"
	AssetIndex     AssetType = "index"
	AssetStock     AssetType = "stock"
	AssetUnknown   AssetType = "unknown"
)

// Quote represents a real-time (or delayed) quote for a single asset.
// When no provider could answer, Error carries a human-readable reason and
// Detail the per-adapter failure trail; the numeric fields are zero.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Currency      string  `json:"currency"`
	Name          string  `json:"name"`
	Volume        int64   `json:"volume,omitempty"`
	MarketCap     float64 `json:"market_cap,omitempty"`
	PERatio       float64 `json:"pe_ratio,omitempty"`
	DataSource    string  `json:"data_source,omitempty"`

	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the quote carries usable data.
func (q *Quote) OK() bool { return q != nil && q.Error == "" }

// Candle represents a single OHLCV bar.
type Candle struct {
	Date   string  `json:"date"` // YYYY-MM-DD
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// HistoricalData holds a candle series for one symbol.
type HistoricalData struct {
	Symbol   string   `json:"symbol"`
	Period   string   `json:"period"`
	Interval string   `json:"interval"`
	Candles  []Candle `json:"candles"`
	Error    string   `json:"error,omitempty"`
}

// NewsItem is a single news/search result used as analysis context.
type NewsItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Suggestion is an autocomplete search result.
type Suggestion struct {
	Ticker    string `json:"ticker"`
	Name      string `json:"name"`
	Exchange  string `json:"exchange,omitempty"`
	AssetType string `json:"asset_type,omitempty"`
	Source    string `json:"source,omitempty"`
}
