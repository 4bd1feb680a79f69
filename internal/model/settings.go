package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FeaturePaperRecommend is the settings blob every pipeline module reads from.
const FeaturePaperRecommend = "paper_recommend"

// Summary sections with their own prompt and character budget.
var Sections = []string{"intro", "method", "findings", "opinion"}

// PresetID is a preset reference stored in a settings blob. Browsers send it
// as a number, a numeric string, an empty string or null; zero means unset.
type PresetID int64

// UnmarshalJSON accepts numbers and numeric strings. Anything else is unset.
func (p *PresetID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = 0
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		*p = 0
		return nil
	}
	*p = PresetID(n)
	return nil
}

// RecommendSettings is the typed view of a user's paper_recommend blob.
type RecommendSettings struct {
	LLMPresetID             PresetID `json:"llm_preset_id"`
	PromptPresetID          PresetID `json:"prompt_preset_id"`
	ThemeSelectLLMPresetID  PresetID `json:"theme_select_llm_preset_id"`
	OrgLLMPresetID          PresetID `json:"org_llm_preset_id"`
	SummaryLLMPresetID      PresetID `json:"summary_llm_preset_id"`
	SummaryLimitLLMPresetID PresetID `json:"summary_limit_llm_preset_id"`

	ThemeSelectPromptPresetID PresetID `json:"theme_select_prompt_preset_id"`
	OrgPromptPresetID         PresetID `json:"org_prompt_preset_id"`
	SummaryPromptPresetID     PresetID `json:"summary_prompt_preset_id"`

	SummaryLimitPromptIntroPresetID    PresetID `json:"summary_limit_prompt_intro_preset_id"`
	SummaryLimitPromptMethodPresetID   PresetID `json:"summary_limit_prompt_method_preset_id"`
	SummaryLimitPromptFindingsPresetID PresetID `json:"summary_limit_prompt_findings_preset_id"`
	SummaryLimitPromptOpinionPresetID  PresetID `json:"summary_limit_prompt_opinion_preset_id"`

	LLMAPIKey         string   `json:"llm_api_key"`
	LLMBaseURL        string   `json:"llm_base_url"`
	LLMModel          string   `json:"llm_model"`
	Temperature       *float64 `json:"temperature"`
	MaxTokens         *int     `json:"max_tokens"`
	InputHardLimit    *int     `json:"input_hard_limit"`
	InputSafetyMargin *int     `json:"input_safety_margin"`

	SystemPrompt               string `json:"system_prompt"`
	SummaryLimitPromptIntro    string `json:"summary_limit_prompt_intro"`
	SummaryLimitPromptMethod   string `json:"summary_limit_prompt_method"`
	SummaryLimitPromptFindings string `json:"summary_limit_prompt_findings"`
	SummaryLimitPromptOpinion  string `json:"summary_limit_prompt_opinion"`

	SectionLimitIntro    *int `json:"section_limit_intro"`
	SectionLimitMethod   *int `json:"section_limit_method"`
	SectionLimitFindings *int `json:"section_limit_findings"`
	SectionLimitOpinion  *int `json:"section_limit_opinion"`
	HeadlineLimit        *int `json:"headline_limit"`

	MineruToken string `json:"mineru_token"`
}

// SectionPrompt returns the raw per-user prompt for a summary section.
func (s RecommendSettings) SectionPrompt(section string) string {
	switch section {
	case "intro":
		return s.SummaryLimitPromptIntro
	case "method":
		return s.SummaryLimitPromptMethod
	case "findings":
		return s.SummaryLimitPromptFindings
	case "opinion":
		return s.SummaryLimitPromptOpinion
	}
	return ""
}

// SectionPromptPreset returns the prompt preset id for a summary section.
func (s RecommendSettings) SectionPromptPreset(section string) PresetID {
	switch section {
	case "intro":
		return s.SummaryLimitPromptIntroPresetID
	case "method":
		return s.SummaryLimitPromptMethodPresetID
	case "findings":
		return s.SummaryLimitPromptFindingsPresetID
	case "opinion":
		return s.SummaryLimitPromptOpinionPresetID
	}
	return 0
}

// SectionLimit returns the per-user character budget for a summary section.
func (s RecommendSettings) SectionLimit(section string) *int {
	switch section {
	case "intro":
		return s.SectionLimitIntro
	case "method":
		return s.SectionLimitMethod
	case "findings":
		return s.SectionLimitFindings
	case "opinion":
		return s.SectionLimitOpinion
	}
	return nil
}

// DecodeRecommendSettings parses a stored blob. An empty blob is an empty settings value.
func DecodeRecommendSettings(blob []byte) (RecommendSettings, error) {
	var s RecommendSettings
	if len(bytes.TrimSpace(blob)) == 0 {
		return s, nil
	}
	err := json.Unmarshal(blob, &s)
	return s, err
}

// featureDefaults are merged under stored values when settings are displayed.
var featureDefaults = map[string]map[string]any{
	FeaturePaperRecommend: {
		"temperature":            1.0,
		"max_tokens":             2048,
		"input_hard_limit":       129024,
		"input_safety_margin":    4096,
		"section_limit_intro":    170,
		"section_limit_method":   270,
		"section_limit_findings": 270,
		"section_limit_opinion":  150,
		"headline_limit":         18,
	},
}

// noDefaultKeys are always present in the merged view but never filled from defaults.
var noDefaultKeys = map[string][]string{
	FeaturePaperRecommend: {
		"llm_base_url", "llm_api_key", "llm_model", "llm_preset_id", "prompt_preset_id",
		"theme_select_llm_preset_id", "org_llm_preset_id", "summary_llm_preset_id", "summary_limit_llm_preset_id",
		"theme_select_prompt_preset_id", "org_prompt_preset_id", "summary_prompt_preset_id",
		"summary_limit_prompt_intro_preset_id", "summary_limit_prompt_method_preset_id",
		"summary_limit_prompt_findings_preset_id", "summary_limit_prompt_opinion_preset_id",
		"mineru_token",
	},
}

// FeatureDefaults returns a copy of the defaults for feature (empty if unknown).
func FeatureDefaults(feature string) map[string]any {
	out := make(map[string]any, len(featureDefaults[feature]))
	for k, v := range featureDefaults[feature] {
		out[k] = v
	}
	return out
}

// MergeSettings overlays stored user values on the feature defaults.
func MergeSettings(feature string, user map[string]any) map[string]any {
	merged := FeatureDefaults(feature)
	for k, v := range user {
		merged[k] = v
	}
	for _, k := range noDefaultKeys[feature] {
		if v, ok := user[k]; ok {
			merged[k] = v
		} else {
			merged[k] = ""
		}
	}
	return merged
}
