// Package consensus implements the multi-persona debate engine: a bull
// and a bear persona argue over shared market context, optionally
// fanned out across several user-configured models, and a judge
// synthesizes their reports into one structured analysis.
package consensus

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/investlens/investlens/internal/llm"
	"github.com/investlens/investlens/pkg/models"
)

// EmitFunc receives stage events for progressive rendering. A nil
// EmitFunc disables streaming.
type EmitFunc func(models.StageEvent)

// MarketData is the slice of the resolver's surface the engine needs.
type MarketData interface {
	GetQuote(ctx context.Context, identifier string) *models.Quote
	GetFinancials(ctx context.Context, identifier string) (map[string]string, error)
	GetMarketContext(ctx context.Context) map[string]string
}

// NewsSearcher supplies recent headlines as prompt context. It must
// never fail; an empty slice means no news.
type NewsSearcher interface {
	Search(ctx context.Context, query string) []models.NewsItem
}

// Engine orchestrates one analysis request through the fixed stage
// pipeline: context gathering, persona generation, judge synthesis,
// parsing.
type Engine struct {
	market MarketData
	news   NewsSearcher
	client *llm.Client

	// allowMock substitutes a labeled mock response for persona and
	// judge calls that fail after retries, instead of aborting the
	// analysis. Meant for development without live credentials.
	allowMock bool
}

// NewEngine creates a consensus engine.
func NewEngine(market MarketData, news NewsSearcher, client *llm.Client, allowMock bool) *Engine {
	return &Engine{
		market:    market,
		news:      news,
		client:    client,
		allowMock: allowMock,
	}
}

// Analyze runs the full pipeline for one request. Quote fetch failure
// and generation failure abort with an error; parse failure degrades
// into a score-zero result instead.
func (e *Engine) Analyze(ctx context.Context, req models.AnalysisRequest, emit EmitFunc) (*models.AnalysisResult, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	focus := req.FocusAreas
	if len(focus) == 0 {
		focus = []string{"Technical", "Fundamental", "Sentiment"}
	}

	send := func(ev models.StageEvent) {
		if emit != nil {
			ev.Timestamp = time.Now()
			emit(ev)
		}
	}

	// CONTEXT_GATHER. The quote is load-bearing; everything else
	// degrades into an explicit placeholder.
	send(models.StageEvent{Stage: models.StageContext, Message: "Gathering market context for " + ticker})

	quote := e.market.GetQuote(ctx, ticker)
	if !quote.OK() {
		return nil, fmt.Errorf("consensus: quote %s: %s", ticker, quote.Error)
	}

	financials, err := e.market.GetFinancials(ctx, ticker)
	if err != nil {
		log.Printf("consensus: financials %s unavailable: %v", ticker, err)
	}
	marketCtx := e.market.GetMarketContext(ctx)
	newsItems := e.news.Search(ctx, ticker+" stock news analysis sentiment")

	cc := &Context{
		Quote:      quote,
		Financials: formatFinancials(financials),
		MarketCtx:  formatMarketContext(marketCtx),
		News:       formatNews(newsItems),
		FocusAreas: focus,
		Timestamp:  time.Now(),
	}
	base := cc.basePrompt()

	configs := req.Models
	if len(configs) == 0 {
		configs = []models.ModelConfig{{Name: "default"}}
	}

	// PERSONA_GENERATION: one bull and one bear call per model config,
	// parallel across models, joined before synthesis.
	send(models.StageEvent{Stage: models.StageBull, Message: "Generating bull case"})
	bullTexts, err := e.personaFanout(ctx, bullPersona, base, configs)
	if err != nil {
		return nil, fmt.Errorf("consensus: bull generation: %w", err)
	}

	send(models.StageEvent{Stage: models.StageBear, Message: "Generating bear case"})
	bearTexts, err := e.personaFanout(ctx, bearPersona, base, configs)
	if err != nil {
		return nil, fmt.Errorf("consensus: bear generation: %w", err)
	}

	names := make([]string, len(configs))
	for i, mc := range configs {
		names[i] = mc.Name
	}
	bull := labelByModel(names, bullTexts)
	bear := labelByModel(names, bearTexts)

	// JUDGE_SYNTHESIS on the first configured model.
	send(models.StageEvent{Stage: models.StageJudge, Message: "Synthesizing verdict", Model: configs[0].Name})
	raw, err := e.generate(ctx, judgePersona, judgePrompt(base, bull, bear, req.QuantMode), &configs[0])
	if err != nil {
		return nil, fmt.Errorf("consensus: judge synthesis: %w", err)
	}

	// PARSE. Failure here is absorbed: a degraded report beats a 500.
	result := e.buildResult(ticker, quote, raw)
	send(models.StageEvent{Stage: models.StageDone, Message: "Analysis complete", Result: result})
	return result, nil
}

// personaFanout issues one generation call per model config, in
// parallel, and returns the responses in config order.
func (e *Engine) personaFanout(ctx context.Context, persona, base string, configs []models.ModelConfig) ([]string, error) {
	texts := make([]string, len(configs))

	g, gctx := errgroup.WithContext(ctx)
	for i := range configs {
		g.Go(func() error {
			text, err := e.generate(gctx, persona, base, &configs[i])
			if err != nil {
				return fmt.Errorf("model %s: %w", configs[i].Name, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

// generate issues one LLM call with the model config's credentials
// overriding the client defaults.
func (e *Engine) generate(ctx context.Context, system, user string, mc *models.ModelConfig) (string, error) {
	ov := &llm.Override{APIKey: mc.APIKey, BaseURL: mc.BaseURL, Model: mc.Model}
	if e.allowMock {
		return e.client.GenerateSafe(ctx, system, user, ov), nil
	}
	return e.client.Generate(ctx, system, user, ov)
}

// buildResult parses the judge text into the final report, falling back
// to a degraded score-zero result when parsing fails outright.
func (e *Engine) buildResult(ticker string, quote *models.Quote, raw string) *models.AnalysisResult {
	report, err := parseJudgeOutput(raw)
	if err != nil {
		return &models.AnalysisResult{
			Ticker:          ticker,
			PriceContext:    quote.Price,
			Summary:         fmt.Sprintf("**Analysis Parsing Error**: %v\n\nRaw Output:\n%s", err, raw),
			BullishCase:     "N/A",
			BearishCase:     "N/A",
			Sentiment:       "N/A",
			ConfidenceScore: 0,
		}
	}
	return &models.AnalysisResult{
		Ticker:          ticker,
		PriceContext:    quote.Price,
		Summary:         report.Summary,
		BullishCase:     report.Bull,
		BearishCase:     report.Bear,
		Sentiment:       report.Sentiment,
		ConfidenceScore: report.Score,
	}
}
