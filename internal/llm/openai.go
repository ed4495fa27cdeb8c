package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// chatMessage is one entry of the Chat Completions payload.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// chatOnce performs a single Chat Completions call against an
// OpenAI-compatible endpoint. Retrying lives in Client.Generate.
func (c *Client) chatOnce(ctx context.Context, endpoint call, system, user string) (string, error) {
	body := chatRequest{
		Model: endpoint.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	url := strings.TrimRight(endpoint.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+endpoint.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	defer resp.Body.Close()

	if err := checkAPIError(resp); err != nil {
		return "", err
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrProviderDown)
	}

	content := result.Choices[0].Message.Content
	log.Printf("llm: %s responded in %v (%d tokens)",
		endpoint.model, time.Since(start).Round(time.Millisecond), result.Usage.TotalTokens)
	return content, nil
}

// checkAPIError maps non-200 responses onto the package's sentinel
// errors so the retry loop can tell transient from permanent failures.
func checkAPIError(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr apiErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrNoAPIKey, apiErr.Error.Message)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 529:
			return fmt.Errorf("%w: %s", ErrRateLimit, apiErr.Error.Message)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: %s", ErrProviderDown, apiErr.Error.Message)
		case strings.Contains(apiErr.Error.Code, "context_length"):
			return fmt.Errorf("%w: %s", ErrContextLength, apiErr.Error.Message)
		}
		return fmt.Errorf("llm: API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrNoAPIKey
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimit
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrProviderDown, resp.StatusCode)
	}
	return fmt.Errorf("llm: HTTP %d: %s", resp.StatusCode, string(body))
}
