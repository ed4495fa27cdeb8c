// Package api provides the HTTP REST API server for InvestLens.
//
// It exposes endpoints for quotes, historical data, financials, ticker
// search, consensus analysis, portfolio critique, data source
// management, and WebSocket streaming of analysis stages.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/investlens/investlens/internal/config"
	"github.com/investlens/investlens/internal/consensus"
	"github.com/investlens/investlens/internal/datasource"
	"github.com/investlens/investlens/pkg/models"
)

// Analyzer runs consensus analyses. Satisfied by *consensus.Engine.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest, emit consensus.EmitFunc) (*models.AnalysisResult, error)
	AnalyzePortfolio(ctx context.Context, symbols []string, mc *models.ModelConfig) (string, error)
}

// MarketResolver serves resolved market data. Satisfied by
// *datasource.Resolver.
type MarketResolver interface {
	GetQuote(ctx context.Context, identifier string) *models.Quote
	GetHistorical(ctx context.Context, identifier, period, interval string) *models.HistoricalData
	GetFinancials(ctx context.Context, identifier string) (map[string]string, error)
	GetMarketContext(ctx context.Context) map[string]string
	Search(ctx context.Context, query string, limit int) []models.Suggestion
}

// NewsSearcher serves headline search. Satisfied by *datasource.News.
type NewsSearcher interface {
	Search(ctx context.Context, query string) []models.NewsItem
}

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	resolver MarketResolver
	news     NewsSearcher
	registry *datasource.Registry
	engine   Analyzer
	wsHub    *WSHub
	version  string
}

// Deps carries the wired application components into the server.
type Deps struct {
	Resolver MarketResolver
	News     NewsSearcher
	Registry *datasource.Registry
	Engine   Analyzer
	Version  string
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, deps Deps) *Server {
	srv := &Server{
		cfg:      cfg,
		resolver: deps.Resolver,
		news:     deps.News,
		registry: deps.Registry,
		engine:   deps.Engine,
		wsHub:    NewWSHub(),
		version:  deps.Version,
	}
	if srv.version == "" {
		srv.version = "dev"
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start WebSocket hub
	go s.wsHub.Run()

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(300 * time.Second))

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Market data
		r.Get("/quote/{ticker}", s.handleQuote)
		r.Get("/historical/{ticker}", s.handleHistorical)
		r.Get("/financials/{ticker}", s.handleFinancials)
		r.Get("/market/context", s.handleMarketContext)
		r.Get("/search/tickers", s.handleSearchTickers)
		r.Get("/news", s.handleNews)

		// Analysis
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/portfolio/analyze", s.handlePortfolioAnalyze)

		// Configuration
		r.Get("/config", s.handleGetConfig)
		r.Get("/config/keys", s.handleGetConfigKeys)
		r.Get("/config/sources", s.handleGetSources)
		r.Put("/config/sources", s.handleUpdateSources)

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PortfolioRequest is the body for POST /api/v1/portfolio/analyze.
type PortfolioRequest struct {
	Symbols []string            `json:"symbols"`
	Model   *models.ModelConfig `json:"model,omitempty"`
}

// PortfolioResponse wraps the markdown critique.
type PortfolioResponse struct {
	Report string `json:"report"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":  "ok",
			"version": s.version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// handleQuote resolves an identifier (ticker, bare code, or ISIN) to a
// quote. Fetch failures are part of the payload: the quote carries an
// error field and the per-source failure trail instead of a 5xx.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "ticker")
	if identifier == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	quote := s.resolver.GetQuote(ctx, identifier)
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    quote,
	})
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "ticker")
	if identifier == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1y"
	}
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1d"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	data := s.resolver.GetHistorical(ctx, identifier, period, interval)
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func (s *Server) handleFinancials(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "ticker")
	if identifier == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	financials, err := s.resolver.GetFinancials(ctx, identifier)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    financials,
	})
}

func (s *Server) handleMarketContext(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.resolver.GetMarketContext(ctx),
	})
}

func (s *Server) handleSearchTickers(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusOK, APIResponse{
			Success: true,
			Data:    []models.Suggestion{},
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	results := s.resolver.Search(ctx, q, 10)
	if results == nil {
		results = []models.Suggestion{}
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    results,
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	items := s.news.Search(ctx, q)
	if items == nil {
		items = []models.NewsItem{}
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    items,
	})
}

// handleAnalyze runs the full consensus pipeline. Stage events are
// broadcast to WebSocket clients as they happen; the final report is
// returned in the response body.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Ticker) == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	emit := func(ev models.StageEvent) {
		s.wsHub.Broadcast(WSMessage{Type: "analysis_stage", Data: ev})
	}

	result, err := s.engine.Analyze(ctx, req, emit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    result,
	})
}

func (s *Server) handlePortfolioAnalyze(w http.ResponseWriter, r *http.Request) {
	var req PortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	report, err := s.engine.AnalyzePortfolio(ctx, req.Symbols, req.Model)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    PortfolioResponse{Report: report},
	})
}

// ============================================================
// WebSocket hub
// ============================================================

// WSMessage is the JSON frame exchanged over WebSocket connections.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WSHub manages WebSocket connections and message broadcasting.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
}

// WSClient represents a single WebSocket connection.
type WSClient struct {
	hub  *WSHub
	send chan WSMessage
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run starts the hub event loop.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client; disconnect
					h.mu.RUnlock()
					h.mu.Lock()
					delete(h.clients, client)
					close(client.send)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected WebSocket clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		// Drop message if broadcast channel is full
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub.
func (h *WSHub) Register(client *WSClient) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	h.unregister <- client
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
