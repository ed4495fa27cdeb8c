package consensus

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/investlens/investlens/pkg/models"
)

// portfolioFetchLimit caps the parallel per-symbol quote fetches.
const portfolioFetchLimit = 5

const emptyPortfolioMsg = "Your portfolio is empty. Even cash is a position (a losing one due to inflation). Add some assets."

const portfolioInstruction = `You are a ruthless, high-performance Hedge Fund Manager. Your job is to critique the user's portfolio with potential "Alpha" in mind.
You DO NOT care about "diversification" for the sake of safety. You care about MAXIMIZING RETURNS and CUTTING LOSERS.

**Style Guide**:
- **Tone**: Aggressive, direct, opinionated, "Savage".
- **No Hedging**: Do not say "this is not financial advice". Do not be polite.
- **Goal**: Identify weak links and suggest high-conviction moves.

**User Portfolio Context**:
%s

**Market Context**:
%s

**Your Task**:
Produce a markdown report in the following STRICT format:

# Portfolio Roast
[One paragraph ruthlessly mocking the portfolio's weaknesses, over-exposure, or mediocrity. Be funny but harsh.]

# Critical Vulnerabilities
- [Point 1: e.g., "You are over-exposed to tech, if rates rise you are dead."]
- [Point 2]

# Hidden Gems (Keepers)
- [Symbol]: [Why it's actually a decent pick, surprisingly]

# The Chopping Block (Sell Now)
- [Symbol]: [Why it's trash. Be specific.]

# Alpha Moves (Aggressive Optimization)
[Concrete suggestions to reallocate capital. Suggest specific sectors or types of assets to swap into.]
`

// AnalyzePortfolio critiques a symbol list with the hedge-fund-manager
// persona. Per-symbol quotes are fetched in parallel under a bounded
// worker pool; a failed fetch becomes an explicit "Data Unavailable"
// line so the report always covers every symbol.
func (e *Engine) AnalyzePortfolio(ctx context.Context, symbols []string, mc *models.ModelConfig) (string, error) {
	if len(symbols) == 0 {
		return emptyPortfolioMsg, nil
	}

	quotes := make([]*models.Quote, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(portfolioFetchLimit)
	for i, sym := range symbols {
		g.Go(func() error {
			quotes[i] = e.market.GetQuote(gctx, sym)
			return nil
		})
	}
	g.Wait() // workers never return errors; failures are quote-shaped

	lines := make([]string, len(symbols))
	for i, sym := range symbols {
		q := quotes[i]
		if q == nil || !q.OK() {
			detail := "no data"
			if q != nil && q.Error != "" {
				detail = q.Error
			}
			lines[i] = fmt.Sprintf("- **%s**: Data Unavailable (Error: %s)", sym, detail)
			continue
		}
		lines[i] = fmt.Sprintf("- **%s** (%s): Price %g, Change %g%%", sym, q.Name, q.Price, q.ChangePercent)
	}
	portfolioCtx := strings.Join(lines, "\n")
	marketCtx := formatMarketContext(e.market.GetMarketContext(ctx))

	prompt := fmt.Sprintf(portfolioInstruction, portfolioCtx, marketCtx)

	if mc == nil {
		mc = &models.ModelConfig{Name: "default"}
	}
	return e.generate(ctx, hedgeFundPersona, prompt, mc)
}
