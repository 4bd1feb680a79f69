package model

// EffectiveLLMConfig is the resolved LLM connection and prompt for one
// (user, module) pair. It is recomputed on every resolution and never stored.
type EffectiveLLMConfig struct {
	Module       string  `json:"module"`
	APIKey       string  `json:"api_key"`
	BaseURL      string  `json:"base_url"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	SystemPrompt string  `json:"system_prompt"`

	InputHardLimit    int               `json:"input_hard_limit,omitempty"`
	InputSafetyMargin int               `json:"input_safety_margin,omitempty"`
	SectionLimits     map[string]int    `json:"section_limits,omitempty"`
	SectionPrompts    map[string]string `json:"section_prompts,omitempty"`
	HeadlineLimit     int               `json:"headline_limit,omitempty"`

	// Source names where the connection came from: "default", "user" or "preset".
	Source   string `json:"source"`
	PresetID int64  `json:"preset_id,omitempty"`
}

// Masked returns a copy with the API key obscured.
func (c EffectiveLLMConfig) Masked() EffectiveLLMConfig {
	c.APIKey = MaskSecret(c.APIKey)
	return c
}
