// Package llm implements a retrying client for OpenAI-compatible chat
// completion APIs (OpenAI, DeepSeek, Ollama's /v1 endpoint, and any
// other conformant server). Credentials, endpoint and model can be
// overridden per call so one process can fan a request out to several
// user-configured models.
package llm

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"
)

// Sentinel errors used to classify API failures.
var (
	ErrNoAPIKey      = errors.New("llm: API key not configured")
	ErrRateLimit     = errors.New("llm: rate limit exceeded")
	ErrContextLength = errors.New("llm: context length exceeded")
	ErrProviderDown  = errors.New("llm: provider unavailable")
)

const (
	maxAttempts    = 3
	initialBackoff = 2 * time.Second
	maxBackoff     = 10 * time.Second
	callTimeout    = 120 * time.Second

	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-3.5-turbo"
)

// MockBanner prefixes every mock fallback response. Callers and tests
// check for it to tell degraded output from genuine model output.
const MockBanner = "**[MOCK ANALYSIS - LLM Connection Failed]**"

const mockFallback = MockBanner + "\n\n" +
	"Unable to connect to the configured AI provider.\n" +
	"Check LLM_API_KEY and LLM_BASE_URL in your environment.\n\n" +
	"### Mock Insight\n" +
	"The market is moving sideways. Wait for a breakout."

// Config holds the process-wide default credentials and generation
// parameters.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Override carries per-call replacements for the default credentials.
// Empty fields fall back to the client's configuration.
type Override struct {
	APIKey  string
	BaseURL string
	Model   string
}

// call is the fully resolved endpoint for one request.
type call struct {
	apiKey  string
	baseURL string
	model   string
}

// Client issues chat completion requests with bounded retry.
type Client struct {
	cfg         Config
	temperature float64
	maxTokens   int
	backoff     time.Duration // initial retry delay, shortened in tests
	http        *http.Client
}

// New creates a client. Zero-valued config fields get defaults; a
// missing API key is allowed and surfaces as ErrNoAPIKey at call time.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = callTimeout
	}
	return &Client{
		cfg:         cfg,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		backoff:     initialBackoff,
		http:        &http.Client{Timeout: cfg.Timeout},
	}
}

// resolve merges an override with the client defaults.
func (c *Client) resolve(ov *Override) call {
	ep := call{apiKey: c.cfg.APIKey, baseURL: c.cfg.BaseURL, model: c.cfg.Model}
	if ov != nil {
		if ov.APIKey != "" {
			ep.apiKey = ov.APIKey
		}
		if ov.BaseURL != "" {
			ep.baseURL = ov.BaseURL
		}
		if ov.Model != "" {
			ep.model = ov.Model
		}
	}
	return ep
}

// transient reports whether an error is worth retrying. Auth failures,
// oversized prompts and other 4xx rejections will fail the same way on
// every attempt.
func transient(err error) bool {
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Generate sends a system+user prompt pair and returns the model's
// text. Transient failures are retried up to three attempts with
// exponential backoff (2s doubling, capped at 10s); the whole call is
// bounded by the configured timeout.
func (c *Client) Generate(ctx context.Context, system, user string, ov *Override) (string, error) {
	ep := c.resolve(ov)
	if ep.apiKey == "" {
		return "", ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		content, err := c.chatOnce(ctx, ep, system, user)
		if err == nil {
			return content, nil
		}
		lastErr = err
		log.Printf("llm: attempt %d/%d against %s failed: %v", attempt, maxAttempts, ep.model, err)

		if !transient(err) || attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return "", lastErr
}

// GenerateSafe is Generate with the error path replaced by a clearly
// labeled mock response, for development without live credentials.
func (c *Client) GenerateSafe(ctx context.Context, system, user string, ov *Override) string {
	content, err := c.Generate(ctx, system, user, ov)
	if err != nil {
		log.Printf("llm: falling back to mock response: %v", err)
		return mockFallback
	}
	return content
}
