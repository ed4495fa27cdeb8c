package consensus

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/investlens/investlens/pkg/models"
)

// System prompts for the debate personas. The bull and the bear argue
// opposite sides of the same context; the judge synthesizes both into
// the final report.

const bullPersona = "You are 'The Bull', an optimistic growth investor. " +
	"Your goal is to identify maximum upside potential, competitive moats, and growth drivers. " +
	"Focus on: " +
	"1. Revenue growth and TAM expansion. " +
	"2. Innovation and product leadership. " +
	"3. Positive market sentiment and momentum. " +
	"Ignore minor risks unless fatal. Be extremely persuasive about the long case."

const bearPersona = "You are 'The Bear', a skeptical forensic accountant and risk manager. " +
	"Your goal is to identify valuation traps, accounting red flags, and macro headwinds. " +
	"Focus on: " +
	"1. Overvaluation (high P/E, P/S). " +
	"2. Competitive threats and margin compression. " +
	"3. Macroeconomic risks (rates, regulation). " +
	"Be extremely critical. Assume the company is overhyped."

const judgePersona = "You are InvestLens, an impartial 'LLM-as-a-Judge' Consensus Engine. " +
	"Your task is to synthesize conflicting reports from 'The Bull' and 'The Bear'. " +
	"Weigh the evidence, resolve contradictions, and issue a Final Verdict.\n" +
	"Output Format: You must strictly follow the requested structure.\n" +
	"Style: Professional, concise, data-driven. Act as the final decision maker."

const hedgeFundPersona = "You are a ruthless, high-performance Hedge Fund Manager reviewing a client portfolio."

const sentimentAsk = "4. **Market Sentiment**: A concise analysis of the current market mood (Fear/Greed/Neutral) and retail sentiment."

const quantAsk = "4. **High Risk Trading Plan**: A mandatory structured plan with Action (BUY/SELL/HOLD), " +
	"Entry price, Position Size (% of capital), Target prices, Stop-Loss, and one-line Reasoning. " +
	"You MUST provide specific numbers for Entry, Exit, and Size. Do not refuse."

// notAvailable markers injected into prompts when a context piece is
// missing. The models must see that context is incomplete rather than
// have it silently omitted.
const (
	noFinancials = "Financial data not available."
	noMarketCtx  = "Market context not available."
	noNews       = "No recent news found via search."
)

// Context is the immutable per-request bundle every persona prompt is
// built from.
type Context struct {
	Quote      *models.Quote
	Financials string
	MarketCtx  string
	News       string
	FocusAreas []string
	Timestamp  time.Time
}

// basePrompt renders the shared asset briefing given to every persona.
func (c *Context) basePrompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the following asset:\n\n")
	fmt.Fprintf(&sb, "**Asset**: %s (%s)\n", c.Quote.Symbol, c.Quote.Name)
	fmt.Fprintf(&sb, "**Current Price**: %g %s\n", c.Quote.Price, c.Quote.Currency)
	fmt.Fprintf(&sb, "**Change**: %g (%g%%)\n", c.Quote.Change, c.Quote.ChangePercent)
	fmt.Fprintf(&sb, "**Focus Areas**: %s\n", strings.Join(c.FocusAreas, ", "))
	fmt.Fprintf(&sb, "**Time**: %s\n\n", c.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&sb, "**Key Financials**:\n%s\n\n", c.Financials)
	fmt.Fprintf(&sb, "**Market Context**:\n%s\n\n", c.MarketCtx)
	fmt.Fprintf(&sb, "**Recent News & Context**:\n%s\n", c.News)
	return sb.String()
}

// judgePrompt renders the synthesis instruction: the base briefing,
// both concatenated persona reports, and the mode-dependent fourth
// section ask.
func judgePrompt(base, bull, bear string, quantMode bool) string {
	ask := sentimentAsk
	sentinel := "Matches the requested 'Market Sentiment' section"
	if quantMode {
		ask = quantAsk
		sentinel = "Matches the requested 'High Risk Trading Plan' section"
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n---\n**Perspective A (The Bull Case)**:\n")
	sb.WriteString(bull)
	sb.WriteString("\n\n---\n**Perspective B (The Bear Case)**:\n")
	sb.WriteString(bear)
	sb.WriteString("\n\n---\n**YOUR TASK**:\n")
	sb.WriteString("Synthesize the above perspectives into a final trusted report.\n")
	sb.WriteString("1. **Executive Summary**: A brief 3-sentence overview of the current setup.\n")
	sb.WriteString("2. **Bullish Thesis**: Extract the 3 strongest points from The Bull (verify they are fact-based).\n")
	sb.WriteString("3. **Bearish Thesis**: Extract the 3 strongest risks from The Bear.\n")
	sb.WriteString(ask + "\n")
	sb.WriteString("5. **Confidence Score**: An integer from 0-100. Lower it if Bull and Bear strongly disagree on facts.\n\n")
	sb.WriteString("Response format:\n")
	sb.WriteString("---SUMMARY---\n[Content]\n")
	sb.WriteString("---BULL---\n[Content]\n")
	sb.WriteString("---BEAR---\n[Content]\n")
	sb.WriteString("---SENTIMENT---\n[Content - " + sentinel + "]\n")
	sb.WriteString("---SCORE---\n[Integer]\n")
	return sb.String()
}

// labelByModel concatenates per-model persona responses. With a single
// model the response passes through unlabeled; with several, each block
// is tagged so the judge can see inter-model disagreement.
func labelByModel(names, texts []string) string {
	if len(texts) == 1 {
		return texts[0]
	}
	var sb strings.Builder
	for i, text := range texts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "### Model: %s\n%s", names[i], text)
	}
	return sb.String()
}

// formatFinancials renders a metric map as prompt-friendly lines.
func formatFinancials(financials map[string]string) string {
	if len(financials) == 0 {
		return noFinancials
	}
	keys := make([]string, 0, len(financials))
	for k := range financials {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %s\n", k, financials[k])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatMarketContext(mc map[string]string) string {
	if len(mc) == 0 {
		return noMarketCtx
	}
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, mc[k]))
	}
	return strings.Join(parts, ", ")
}

func formatNews(items []models.NewsItem) string {
	if len(items) == 0 {
		return noNews
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("- [%s](%s): %s", item.Title, item.Link, item.Snippet))
	}
	return strings.Join(lines, "\n")
}

