package datasource

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/investlens/investlens/pkg/models"
)

// News fetches recent headlines used as analysis context. The Yahoo
// Finance RSS feed is tried first, then a DuckDuckGo HTML search as a
// best-effort fallback. Search never fails: when everything is
// unreachable it returns an empty slice.
type News struct {
	cache   *Cache
	limiter *RateLimiter
	parser  *gofeed.Parser
}

// NewNews creates a news fetcher.
func NewNews() *News {
	return &News{
		cache:   NewCache(10 * time.Minute),
		limiter: NewRateLimiter(2, time.Second),
		parser:  gofeed.NewParser(),
	}
}

// maxNewsItems caps how many headlines are injected into analysis
// prompts.
const maxNewsItems = 5

// Search returns up to five recent headlines for the query. Errors are
// swallowed: news is supplementary context and its absence should never
// fail an analysis.
func (n *News) Search(ctx context.Context, query string) []models.NewsItem {
	cacheKey := "news:" + strings.ToLower(query)
	if cached, ok := n.cache.Get(cacheKey); ok {
		return cached.([]models.NewsItem)
	}

	items := n.fromYahooRSS(ctx, query)
	if len(items) == 0 {
		items = n.fromDuckDuckGo(ctx, query)
	}
	if len(items) > maxNewsItems {
		items = items[:maxNewsItems]
	}

	n.cache.Set(cacheKey, items)
	return items
}

// fromYahooRSS reads the per-symbol Yahoo Finance headline feed.
func (n *News) fromYahooRSS(ctx context.Context, query string) []models.NewsItem {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil
	}

	// The feed keys on ticker symbols; multi-word queries rarely match
	// but the DDG fallback covers those.
	symbol := strings.ToUpper(strings.Fields(query)[0])
	feedURL := fmt.Sprintf(
		"https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US",
		url.QueryEscape(symbol),
	)

	feed, err := n.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil
	}

	items := make([]models.NewsItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Title == "" {
			continue
		}
		items = append(items, models.NewsItem{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: stripHTML(item.Description),
		})
	}
	return items
}

// fromDuckDuckGo scrapes the DuckDuckGo HTML endpoint. It needs no API
// key, which is why it is the fallback of last resort.
func (n *News) fromDuckDuckGo(ctx context.Context, query string) []models.NewsItem {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil
	}

	u := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query+" stock news")
	body, _, err := doGet(ctx, u, map[string]string{
		"Accept": "text/html",
	})
	if err != nil {
		return nil
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil
	}

	var items []models.NewsItem
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("a.result__a")
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return true
		}
		href, _ := link.Attr("href")
		items = append(items, models.NewsItem{
			Title:   title,
			Link:    cleanDDGLink(href),
			Snippet: strings.TrimSpace(s.Find("a.result__snippet").Text()),
		})
		return len(items) < maxNewsItems
	})
	return items
}

// cleanDDGLink unwraps DuckDuckGo's redirect URLs
// (//duckduckgo.com/l/?uddg=<encoded>).
func cleanDDGLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// stripHTML flattens an HTML fragment to its text content.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
