package model

import (
	"strings"
	"time"
)

// LLMPreset is a named, reusable bundle of LLM connection parameters owned by one user.
// Nil numeric fields and empty strings never override anything during resolution.
type LLMPreset struct {
	ID                int64    `json:"id"`
	UserID            int64    `json:"user_id"`
	Name              string   `json:"name"`
	BaseURL           string   `json:"base_url"`
	APIKey            string   `json:"api_key"`
	Model             string   `json:"model"`
	MaxTokens         *int     `json:"max_tokens"`
	Temperature       *float64 `json:"temperature"`
	InputHardLimit    *int     `json:"input_hard_limit"`
	InputSafetyMargin *int     `json:"input_safety_margin"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// PromptPreset is a named system prompt owned by one user.
type PromptPreset struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	Name          string `json:"name"`
	PromptContent string `json:"prompt_content"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// Masked returns a copy safe to send to a browser.
func (p LLMPreset) Masked() LLMPreset {
	p.APIKey = MaskSecret(p.APIKey)
	return p
}

// MaskSecret keeps the first and last four characters of long secrets.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// Now is the timestamp format used for persisted records.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
