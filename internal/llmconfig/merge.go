package llmconfig

import (
	"strings"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

// connection is one override layer. Empty strings and nil numbers do not override.
type connection struct {
	apiKey            string
	baseURL           string
	model             string
	temperature       *float64
	maxTokens         *int
	inputHardLimit    *int
	inputSafetyMargin *int
}

func (c connection) suppliesEndpoint() bool {
	return strings.TrimSpace(c.apiKey) != "" || strings.TrimSpace(c.baseURL) != ""
}

func (c connection) apply(cfg *model.EffectiveLLMConfig, inputLimits bool) {
	cfg.APIKey = mergeString(cfg.APIKey, c.apiKey)
	cfg.BaseURL = mergeString(cfg.BaseURL, c.baseURL)
	cfg.Model = mergeString(cfg.Model, c.model)
	cfg.Temperature = mergeFloat(cfg.Temperature, c.temperature)
	cfg.MaxTokens = mergeInt(cfg.MaxTokens, c.maxTokens)
	if inputLimits {
		cfg.InputHardLimit = mergeInt(cfg.InputHardLimit, c.inputHardLimit)
		cfg.InputSafetyMargin = mergeInt(cfg.InputSafetyMargin, c.inputSafetyMargin)
	}
}

func mergeString(base, override string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return base
}

func mergeFloat(base float64, override *float64) float64 {
	if override != nil {
		return *override
	}
	return base
}

func mergeInt(base int, override *int) int {
	if override != nil {
		return *override
	}
	return base
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
