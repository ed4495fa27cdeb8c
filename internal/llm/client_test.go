package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func chatOK(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"total_tokens": 10},
		})
	}
}

func newTestClient(baseURL string) *Client {
	c := New(Config{APIKey: "test-key", BaseURL: baseURL, Model: "test-model"})
	c.backoff = time.Millisecond
	return c
}

func TestGenerate(t *testing.T) {
	var gotAuth, gotModel atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotModel.Store(req.Model)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		chatOK("analysis text")(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Generate(context.Background(), "sys", "user", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "analysis text" {
		t.Fatalf("got %q", out)
	}
	if gotAuth.Load() != "Bearer test-key" {
		t.Fatalf("auth header %v", gotAuth.Load())
	}
	if gotModel.Load() != "test-model" {
		t.Fatalf("model %v", gotModel.Load())
	}
}

func TestGenerateOverrides(t *testing.T) {
	var gotAuth, gotModel atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotModel.Store(req.Model)
		chatOK("ok")(w, r)
	}))
	defer srv.Close()

	// Client points at a dead default; the override redirects the call.
	c := newTestClient("http://127.0.0.1:1")
	_, err := c.Generate(context.Background(), "s", "u", &Override{
		APIKey:  "user-key",
		BaseURL: srv.URL,
		Model:   "deepseek-chat",
	})
	if err != nil {
		t.Fatalf("Generate with override: %v", err)
	}
	if gotAuth.Load() != "Bearer user-key" {
		t.Fatalf("auth header %v", gotAuth.Load())
	}
	if gotModel.Load() != "deepseek-chat" {
		t.Fatalf("model %v", gotModel.Load())
	}
}

func TestGenerateNoAPIKey(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := c.Generate(context.Background(), "s", "u", nil); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("got %v, want ErrNoAPIKey", err)
	}
}

func TestGenerateRetriesTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		chatOK("recovered")(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Generate(context.Background(), "s", "u", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "recovered" {
		t.Fatalf("got %q", out)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("got %d calls, want 3", n)
	}
}

func TestGenerateStopsAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Generate(context.Background(), "s", "u", nil)
	if !errors.Is(err, ErrProviderDown) {
		t.Fatalf("got %v, want ErrProviderDown", err)
	}
	if n := atomic.LoadInt32(&calls); n != maxAttempts {
		t.Fatalf("got %d calls, want %d", n, maxAttempts)
	}
}

func TestGenerateDoesNotRetryAuthFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "bad key"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Generate(context.Background(), "s", "u", nil)
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("got %v, want ErrNoAPIKey", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("got %d calls, want 1 (no retry on auth failure)", n)
	}
}

func TestGenerateRateLimitClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "slow down"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Generate(context.Background(), "s", "u", nil)
	if !errors.Is(err, ErrRateLimit) {
		t.Fatalf("got %v, want ErrRateLimit", err)
	}
}

func TestGenerateSafeMockFallback(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	out := c.GenerateSafe(context.Background(), "s", "u", nil)
	if !strings.HasPrefix(out, MockBanner) {
		t.Fatalf("mock response must start with the banner, got %q", out)
	}
}

func TestGenerateSafePassesThroughSuccess(t *testing.T) {
	srv := httptest.NewServer(chatOK("real output"))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out := c.GenerateSafe(context.Background(), "s", "u", nil)
	if out != "real output" {
		t.Fatalf("got %q", out)
	}
	if strings.Contains(out, MockBanner) {
		t.Fatal("genuine output must not carry the mock banner")
	}
}

func TestTransientClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", ErrRateLimit, true},
		{"provider down", ErrProviderDown, true},
		{"no api key", ErrNoAPIKey, false},
		{"context length", ErrContextLength, false},
		{"generic", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transient(tt.err); got != tt.want {
				t.Errorf("transient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
