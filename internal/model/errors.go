package model

import "encoding/json"

// RunFailure holds structured failure information for a finished run.
type RunFailure struct {
	FailedStep string   `json:"failed_step,omitempty"`
	ExitCode   int      `json:"exit_code"`
	Message    string   `json:"message"`
	LogTail    []string `json:"log_tail,omitempty"`
	FailedAt   string   `json:"failed_at"`
}

// ToJSON serializes RunFailure to a JSON string.
func (f RunFailure) ToJSON() string {
	b, _ := json.Marshal(f)
	return string(b)
}

// ParseRunFailure decodes a stored failure; empty input yields nil.
func ParseRunFailure(s string) *RunFailure {
	if s == "" {
		return nil
	}
	var f RunFailure
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return nil
	}
	return &f
}
