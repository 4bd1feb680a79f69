package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

func replyWith(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: content}}}})
}

// shortRetry makes the retry pause negligible for the test.
func shortRetry(t *testing.T, d time.Duration) {
	old := retryDelay
	retryDelay = d
	t.Cleanup(func() { retryDelay = old })
}

func testConfig(baseURL string) model.EffectiveLLMConfig {
	return model.EffectiveLLMConfig{
		Module:       "summary",
		APIKey:       "sk-mock",
		BaseURL:      baseURL,
		Model:        "qwen-plus",
		Temperature:  0.2,
		MaxTokens:    1024,
		SystemPrompt: "You summarize papers.",
	}
}

func TestNewChatClient_FromConfig(t *testing.T) {
	c := NewChatClient(testConfig("https://dashscope.example/v1/"), WithTimeout(5*time.Second))

	if c.baseURL != "https://dashscope.example/v1" {
		t.Errorf("baseURL = %q, trailing slash should be trimmed", c.baseURL)
	}
	if c.model != "qwen-plus" || c.maxTokens != 1024 || c.temperature != 0.2 {
		t.Errorf("client = %+v, want fields copied from config", c)
	}
	if c.httpClient.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.httpClient.Timeout)
	}
}

func TestComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-mock" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer sk-mock")
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "qwen-plus" || req.MaxTokens != 1024 || req.Temperature != 0.2 {
			t.Errorf("request = %+v, want config values", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hi" {
			t.Errorf("messages = %+v, want system + user", req.Messages)
		}
		replyWith(w, "Hello from mock!")
	}))
	defer srv.Close()

	got, err := NewChatClient(testConfig(srv.URL)).Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Hello from mock!" {
		t.Errorf("Complete = %q, want %q", got, "Hello from mock!")
	}
}

func TestComplete_NoSystemPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v, want a single user message", req.Messages)
		}
		replyWith(w, "ok")
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.SystemPrompt = ""
	if _, err := NewChatClient(cfg).Complete(context.Background(), "hi"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	shortRetry(t, time.Millisecond)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	if _, err := NewChatClient(testConfig(srv.URL)).Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestComplete_RetryOnServerError(t *testing.T) {
	shortRetry(t, time.Millisecond)
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("server error"))
			return
		}
		replyWith(w, "recovered")
	}))
	defer srv.Close()

	got, err := NewChatClient(testConfig(srv.URL)).Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "recovered" {
		t.Errorf("Complete = %q, want %q", got, "recovered")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestComplete_NoRetryOn4xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	if _, err := NewChatClient(testConfig(srv.URL)).Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (should not retry 4xx)", attempts)
	}
}

func TestComplete_CancelStopsRetry(t *testing.T) {
	shortRetry(t, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	done := make(chan error, 1)
	go func() {
		_, err := NewChatClient(testConfig(srv.URL)).Complete(ctx, "hi")
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Complete kept waiting after cancel")
	}
}
