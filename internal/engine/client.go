// Package engine talks to OpenAI-compatible chat endpoints with a resolved
// per-module configuration.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

// Completer sends one prompt and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatClient calls the Chat Completions API of any OpenAI-compatible service
// (DashScope, DeepSeek, OpenAI, ...).
type ChatClient struct {
	apiKey       string
	baseURL      string
	model        string
	temperature  float64
	maxTokens    int
	systemPrompt string
	httpClient   *http.Client
}

// ClientOption configures a ChatClient.
type ClientOption func(*ChatClient)

// WithTimeout sets the per-request timeout (default 120s).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *ChatClient) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *ChatClient) { c.httpClient = hc }
}

// NewChatClient creates a client for a resolved configuration.
func NewChatClient(cfg model.EffectiveLLMConfig, opts ...ClientOption) *ChatClient {
	c := &ChatClient{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// apiError is a non-200 reply.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// isRetryable returns true for rate limits and server errors.
func (e *apiError) isRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// retryDelay is the pause before the single retry of a transient failure.
var retryDelay = 2 * time.Second

// Complete sends prompt, preceded by the configured system prompt, and
// returns the first choice. A rate limit, 5xx or transport failure is retried once.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(c.request(prompt))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	reply, err := c.post(ctx, body)
	var ae *apiError
	if err != nil && (!errors.As(err, &ae) || ae.isRetryable()) {
		t := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
		reply, err = c.post(ctx, body)
	}
	if err != nil {
		return "", fmt.Errorf("chat %s: %w", c.model, err)
	}
	return reply, nil
}

func (c *ChatClient) request(prompt string) chatRequest {
	req := chatRequest{Model: c.model, Temperature: c.temperature, MaxTokens: c.maxTokens}
	if c.systemPrompt != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: c.systemPrompt})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt})
	return req
}

// post performs one call and extracts the first choice.
func (c *ChatClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &apiError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return cr.reply()
}

const maxResponseBytes = 8 << 20

func (r chatResponse) reply() (string, error) {
	switch {
	case r.Error != nil:
		return "", fmt.Errorf("api error: %s", r.Error.Message)
	case len(r.Choices) == 0:
		return "", errors.New("no choices in response")
	}
	return r.Choices[0].Message.Content, nil
}
