package models

import "time"

// ModelConfig describes one LLM configuration participating in a
// multi-model consensus run. Name labels the model's responses in the
// judge prompt so inter-model disagreement stays visible.
type ModelConfig struct {
	Name    string `json:"name"`
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// AnalysisRequest encapsulates the parameters of one consensus run.
type AnalysisRequest struct {
	Ticker     string        `json:"ticker"`
	FocusAreas []string      `json:"focus_areas,omitempty"`
	QuantMode  bool          `json:"quant_mode,omitempty"`
	Models     []ModelConfig `json:"models,omitempty"` // empty = single default model
}

// AnalysisResult is the structured output of one consensus run.
// ConfidenceScore is 0–100; 50 is the neutral default used when the judge
// text carried no numeric score, 0 marks a degraded (parse-failed) result.
type AnalysisResult struct {
	Ticker          string  `json:"ticker"`
	PriceContext    float64 `json:"price_context"`
	Summary         string  `json:"summary"`
	BullishCase     string  `json:"bullish_case"`
	BearishCase     string  `json:"bearish_case"`
	Sentiment       string  `json:"sentiment"` // market sentiment, or the trading plan in quant mode
	ConfidenceScore int     `json:"confidence_score"`
}

// Analysis pipeline stages, emitted in order on the streaming interface.
const (
	StageContext = "context"
	StageBull    = "bull"
	StageBear    = "bear"
	StageJudge   = "judge"
	StageDone    = "done"
)

// StageEvent is one progress event of a streamed consensus run.
// Result is non-nil only on the "done" stage.
type StageEvent struct {
	Stage     string          `json:"stage"`
	Message   string          `json:"message,omitempty"`
	Model     string          `json:"model,omitempty"` // multi-model mode only
	Result    *AnalysisResult `json:"result,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
