// Package api — configuration management endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/investlens/investlens/internal/config"
	"github.com/investlens/investlens/internal/datasource"
)

// sourcesMu serialises writes to the data source registry file.
var sourcesMu sync.Mutex

// ConfigView is the redacted configuration returned by GET /api/v1/config.
type ConfigView struct {
	LLM struct {
		BaseURL     string  `json:"base_url"`
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		KeySet      bool    `json:"key_set"`
	} `json:"llm"`
	Analysis config.AnalysisConfig `json:"analysis"`
	API      struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"api"`
}

// handleGetConfig returns the running configuration with secrets
// reduced to set/unset flags.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	var view ConfigView
	view.LLM.BaseURL = s.cfg.LLM.BaseURL
	view.LLM.Model = s.cfg.LLM.Model
	view.LLM.Temperature = s.cfg.LLM.Temperature
	view.LLM.MaxTokens = s.cfg.LLM.MaxTokens
	view.LLM.KeySet = s.cfg.LLM.APIKey != ""
	view.Analysis = s.cfg.Analysis
	view.API.Host = s.cfg.API.Host
	view.API.Port = s.cfg.API.Port

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    view,
	})
}

// handleGetConfigKeys returns the status of all sensitive API keys.
func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	keys := config.CheckAPIKeys(s.cfg)
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    keys,
	})
}

// handleGetSources returns the ordered data source configurations.
func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.registry.Configs(),
	})
}

// handleUpdateSources replaces the data source configuration, persists
// it, and hot-swaps the active source chain. In-flight requests keep
// the chain they started with.
func (s *Server) handleUpdateSources(w http.ResponseWriter, r *http.Request) {
	var configs []datasource.SourceConfig
	if err := json.NewDecoder(r.Body).Decode(&configs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	sourcesMu.Lock()
	defer sourcesMu.Unlock()

	if err := s.registry.UpdateConfigs(configs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.registry.Configs(),
	})
}
