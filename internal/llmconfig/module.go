package llmconfig

import (
	"fmt"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

// Module identifies an LLM-calling pipeline stage.
type Module string

const (
	ThemeSelect  Module = "theme_select"
	Org          Module = "org"
	Summary      Module = "summary"
	SummaryLimit Module = "summary_limit"
	PaperAssets  Module = "paper_assets"
)

// Modules lists every module in pipeline order.
func Modules() []Module {
	return []Module{ThemeSelect, Org, Summary, SummaryLimit, PaperAssets}
}

// ParseModule validates a module name.
func ParseModule(s string) (Module, error) {
	for _, m := range Modules() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown module %q", s)
}

// keys selects the settings-blob fields a module reads. All modules share one
// blob and are told apart by these fields.
type keys struct {
	llmPreset    func(model.RecommendSettings) model.PresetID
	promptPreset func(model.RecommendSettings) model.PresetID
	rawPrompt    func(model.RecommendSettings) string
	inputLimits  bool
	sections     bool
}

var moduleKeys = map[Module]keys{
	ThemeSelect: {
		llmPreset:    func(s model.RecommendSettings) model.PresetID { return s.ThemeSelectLLMPresetID },
		promptPreset: func(s model.RecommendSettings) model.PresetID { return s.ThemeSelectPromptPresetID },
	},
	Org: {
		llmPreset:    func(s model.RecommendSettings) model.PresetID { return s.OrgLLMPresetID },
		promptPreset: func(s model.RecommendSettings) model.PresetID { return s.OrgPromptPresetID },
	},
	Summary: {
		llmPreset:    func(s model.RecommendSettings) model.PresetID { return s.SummaryLLMPresetID },
		promptPreset: func(s model.RecommendSettings) model.PresetID { return s.SummaryPromptPresetID },
		rawPrompt:    func(s model.RecommendSettings) string { return s.SystemPrompt },
		inputLimits:  true,
	},
	SummaryLimit: {
		llmPreset:   func(s model.RecommendSettings) model.PresetID { return s.SummaryLimitLLMPresetID },
		inputLimits: true,
		sections:    true,
	},
	// paper_assets post-processes summaries and shares their connection.
	PaperAssets: {
		llmPreset:   func(s model.RecommendSettings) model.PresetID { return s.SummaryLLMPresetID },
		inputLimits: true,
	},
}
