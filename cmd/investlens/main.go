// InvestLens — multi-market data aggregation and LLM consensus analysis.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/investlens/investlens/api"
	"github.com/investlens/investlens/internal/config"
	"github.com/investlens/investlens/internal/consensus"
	"github.com/investlens/investlens/internal/datasource"
	"github.com/investlens/investlens/internal/isin"
	"github.com/investlens/investlens/internal/llm"
	"github.com/investlens/investlens/internal/ticker"
	"github.com/investlens/investlens/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "investlens",
	Short: "InvestLens — multi-market quotes and LLM consensus analysis",
	Long: `InvestLens aggregates quotes, history, and fundamentals across US,
China, and Hong Kong markets through a fallback chain of data sources,
and runs bull/bear/judge consensus debates over them with any
OpenAI-compatible model.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real env vars win either way.
		_ = godotenv.Load()

		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(portfolioCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
}

// app bundles the wired components shared by the commands.
type app struct {
	registry *datasource.Registry
	resolver *datasource.Resolver
	news     *datasource.News
	engine   *consensus.Engine
}

// newApp wires the data layer and consensus engine from config.
func newApp(cfg *config.Config) *app {
	registry := datasource.NewRegistry(datasource.RegistryOptions{
		SourcesPath:     cfg.Sources.Path,
		AlphaVantageKey: cfg.Sources.AlphaVantageKey,
	})
	norm := ticker.NewNormalizer(isin.NewSeededStore())
	resolver := datasource.NewResolver(registry, norm)
	news := datasource.NewNews()

	client := llm.New(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})
	engine := consensus.NewEngine(resolver, news, client, cfg.Analysis.AllowMock)

	return &app{
		registry: registry,
		resolver: resolver,
		news:     news,
		engine:   engine,
	}
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("InvestLens %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		srv := api.NewServer(cfg, api.Deps{
			Resolver: a.resolver,
			News:     a.news,
			Registry: a.registry,
			Engine:   a.engine,
			Version:  version,
		})

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🌐 Starting InvestLens API server on %s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

// --- Quote Command ---

var quoteCmd = &cobra.Command{
	Use:   "quote [ticker|code|ISIN]",
	Short: "Fetch a quote for any supported identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		q := a.resolver.GetQuote(ctx, args[0])
		if !q.OK() {
			fmt.Printf("❌ %s: %s\n", args[0], q.Error)
			if q.Detail != "" {
				fmt.Printf("   %s\n", q.Detail)
			}
			return nil
		}

		fmt.Printf("%s (%s)\n", q.Symbol, q.Name)
		fmt.Printf("  Price:   %g %s\n", q.Price, q.Currency)
		fmt.Printf("  Change:  %+g (%+g%%)\n", q.Change, q.ChangePercent)
		if q.PERatio != 0 {
			fmt.Printf("  P/E:     %g\n", q.PERatio)
		}
		fmt.Printf("  Source:  %s\n", q.DataSource)
		return nil
	},
}

// --- History Command ---

var historyCmd = &cobra.Command{
	Use:   "history [ticker]",
	Short: "Fetch historical candles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		period, _ := cmd.Flags().GetString("period")
		interval, _ := cmd.Flags().GetString("interval")

		a := newApp(cfg)
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		data := a.resolver.GetHistorical(ctx, args[0], period, interval)
		if data.Error != "" {
			fmt.Printf("❌ %s: %s\n", args[0], data.Error)
			return nil
		}

		fmt.Printf("%s — %d candles (%s, %s)\n", data.Symbol, len(data.Candles), data.Period, data.Interval)
		for _, c := range data.Candles {
			fmt.Printf("  %s  O %-10g H %-10g L %-10g C %-10g V %d\n",
				c.Date, c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("period", "1y", "lookback period (1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max)")
	historyCmd.Flags().String("interval", "1d", "candle interval")
}

// --- Analyze Command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [ticker]",
	Short: "Run a bull/bear/judge consensus analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quant, _ := cmd.Flags().GetBool("quant")
		focus, _ := cmd.Flags().GetStringSlice("focus")

		a := newApp(cfg)
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		req := models.AnalysisRequest{
			Ticker:     args[0],
			FocusAreas: focus,
			QuantMode:  quant,
		}
		emit := func(ev models.StageEvent) {
			if ev.Stage != models.StageDone {
				fmt.Printf("  [%s] %s\n", ev.Stage, ev.Message)
			}
		}

		result, err := a.engine.Analyze(ctx, req, emit)
		if err != nil {
			return err
		}

		fmt.Printf("\n━━━ %s (price %g, confidence %d/100) ━━━\n\n", result.Ticker, result.PriceContext, result.ConfidenceScore)
		fmt.Printf("## Summary\n%s\n\n", result.Summary)
		fmt.Printf("## Bullish Case\n%s\n\n", result.BullishCase)
		fmt.Printf("## Bearish Case\n%s\n\n", result.BearishCase)
		if quant {
			fmt.Printf("## Trading Plan\n%s\n", result.Sentiment)
		} else {
			fmt.Printf("## Sentiment\n%s\n", result.Sentiment)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().Bool("quant", false, "request a structured trading plan instead of sentiment")
	analyzeCmd.Flags().StringSlice("focus", nil, "focus areas (default: Technical, Fundamental, Sentiment)")
}

// --- Portfolio Command ---

var portfolioCmd = &cobra.Command{
	Use:   "portfolio [symbols...]",
	Short: "Get a hedge-fund-manager critique of a portfolio",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		report, err := a.engine.AnalyzePortfolio(ctx, args, nil)
		if err != nil {
			return err
		}
		fmt.Println(report)
		return nil
	},
}

// --- Search Command ---

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search for tickers across data sources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		results := a.resolver.Search(ctx, strings.Join(args, " "), 10)
		if len(results) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, s := range results {
			fmt.Printf("  %-12s %-40s %s\n", s.Ticker, s.Name, s.Exchange)
		}
		return nil
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  InvestLens — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:     %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    LLM:         %s (model: %s)\n", cfg.LLM.BaseURL, cfg.LLM.Model)
		fmt.Printf("    Mock mode:   %v\n", cfg.Analysis.AllowMock)
		fmt.Printf("    Sources:     %s\n", cfg.Sources.Path)
		fmt.Printf("    API Server:  %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println("  Data Sources:")
		a := newApp(cfg)
		for i, src := range a.registry.Sources() {
			fmt.Printf("    %d. %s\n", i+1, src.Name())
		}
		fmt.Printf("    CN %s\n", a.registry.China().Name())
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
