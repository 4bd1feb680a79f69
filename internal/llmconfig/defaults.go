package llmconfig

import (
	"github.com/yangwenmai/arxivdaily/internal/config"
	"github.com/yangwenmai/arxivdaily/internal/model"
)

// ModuleDefaults are the built-in values a module starts resolution from.
// Empty BaseURL or Model means "take it from the active backend".
type ModuleDefaults struct {
	BaseURL           string
	Model             string
	Temperature       float64
	MaxTokens         int
	SystemPrompt      string
	InputHardLimit    int
	InputSafetyMargin int
	SectionLimits     map[string]int
	SectionPrompts    map[string]string
	HeadlineLimit     int
}

// Defaults is the global fallback layer: three backends chosen by the SLLM
// selector plus per-module constants.
type Defaults struct {
	Backends map[int]config.LLMBackend
	Modules  map[Module]ModuleDefaults
}

// Backend returns the credentials for selector. Zero or unknown selectors use backend 1.
func (d Defaults) Backend(selector int) config.LLMBackend {
	if b, ok := d.Backends[selector]; ok {
		return b
	}
	return d.Backends[1]
}

const (
	defaultInputHardLimit    = 129024
	defaultInputSafetyMargin = 4096
	defaultHeadlineLimit     = 18
)

var defaultSectionLimits = map[string]int{
	"intro":    170,
	"method":   270,
	"findings": 270,
	"opinion":  150,
}

var defaultSectionPrompts = map[string]string{
	"intro":    "Condense the paper's motivation and problem statement. Stay within the character budget.",
	"method":   "Condense the proposed method and its key components. Stay within the character budget.",
	"findings": "Condense the main experimental findings with concrete numbers. Stay within the character budget.",
	"opinion":  "Give a short, balanced assessment of the paper's contribution. Stay within the character budget.",
}

var builtinModules = map[Module]ModuleDefaults{
	ThemeSelect: {
		Temperature:  0.2,
		MaxTokens:    1024,
		SystemPrompt: "You judge whether an arXiv paper matches the reader's research themes. Answer with the matching theme ids as JSON.",
	},
	Org: {
		Temperature:  1.0,
		MaxTokens:    1024,
		SystemPrompt: "Extract the authors' institutions from the first page of the paper. Answer as JSON.",
	},
	Summary: {
		Temperature:       1.0,
		MaxTokens:         2048,
		SystemPrompt:      "Summarize the paper for a busy researcher: motivation, method, findings and an opinion.",
		InputHardLimit:    defaultInputHardLimit,
		InputSafetyMargin: defaultInputSafetyMargin,
	},
	SummaryLimit: {
		Temperature:       1.0,
		MaxTokens:         2048,
		InputHardLimit:    defaultInputHardLimit,
		InputSafetyMargin: defaultInputSafetyMargin,
		SectionLimits:     defaultSectionLimits,
		SectionPrompts:    defaultSectionPrompts,
		HeadlineLimit:     defaultHeadlineLimit,
	},
	PaperAssets: {
		Temperature:       1.0,
		MaxTokens:         2048,
		SystemPrompt:      "Turn the paper summary into structured assets (headline, tags, key figures) as JSON lines.",
		InputHardLimit:    defaultInputHardLimit,
		InputSafetyMargin: defaultInputSafetyMargin,
	},
}

// NewDefaults layers environment overrides from cfg on the built-in module constants.
func NewDefaults(cfg config.Config) Defaults {
	d := Defaults{
		Backends: make(map[int]config.LLMBackend, len(cfg.Backends)),
		Modules:  make(map[Module]ModuleDefaults, len(builtinModules)),
	}
	for sel, b := range cfg.Backends {
		d.Backends[sel] = b
	}
	for m, md := range builtinModules {
		if o, ok := cfg.Modules[string(m)]; ok {
			if o.BaseURL != "" {
				md.BaseURL = o.BaseURL
			}
			if o.Model != "" {
				md.Model = o.Model
			}
			if o.Temperature != 0 {
				md.Temperature = o.Temperature
			}
			if o.MaxTokens != 0 {
				md.MaxTokens = o.MaxTokens
			}
		}
		d.Modules[m] = md
	}
	return d
}

// start builds the resolution starting point for module under selector.
func (d Defaults) start(m Module, selector int) model.EffectiveLLMConfig {
	md := d.Modules[m]
	b := d.Backend(selector)
	cfg := model.EffectiveLLMConfig{
		Module:            string(m),
		APIKey:            b.APIKey,
		BaseURL:           firstNonEmpty(md.BaseURL, b.BaseURL),
		Model:             firstNonEmpty(md.Model, b.Model),
		Temperature:       md.Temperature,
		MaxTokens:         md.MaxTokens,
		SystemPrompt:      md.SystemPrompt,
		InputHardLimit:    md.InputHardLimit,
		InputSafetyMargin: md.InputSafetyMargin,
		HeadlineLimit:     md.HeadlineLimit,
		Source:            SourceDefault,
	}
	if md.SectionLimits != nil {
		cfg.SectionLimits = make(map[string]int, len(md.SectionLimits))
		for k, v := range md.SectionLimits {
			cfg.SectionLimits[k] = v
		}
	}
	if md.SectionPrompts != nil {
		cfg.SectionPrompts = make(map[string]string, len(md.SectionPrompts))
		for k, v := range md.SectionPrompts {
			cfg.SectionPrompts[k] = v
		}
	}
	return cfg
}
