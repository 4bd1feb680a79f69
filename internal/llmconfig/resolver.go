// Package llmconfig resolves the effective LLM connection and prompt for a
// (user, module) pair: built-in defaults, then the user's module preset or
// generic preset, then raw per-user fields, with non-empty values winning.
package llmconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

// Connection sources reported in EffectiveLLMConfig.Source.
const (
	SourceDefault = "default"
	SourceUser    = "user"
	SourcePreset  = "preset"
)

// ErrMissingCredentials is matched by every ConfigError.
var ErrMissingCredentials = errors.New("llm credentials missing")

// ConfigError is the fatal outcome of a resolution that ended without an
// api_key or base_url. It must be surfaced, never retried.
type ConfigError struct {
	Module Module
	Field  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: no %s available (global config or user preset)", e.Module, e.Field)
}

// Is reports ErrMissingCredentials so callers can match without the concrete type.
func (e *ConfigError) Is(target error) bool {
	return target == ErrMissingCredentials
}

// SettingsSource loads a user's raw settings blob.
type SettingsSource interface {
	GetRawSettings(ctx context.Context, userID int64, feature string) ([]byte, error)
}

// PresetSource looks up presets owned by a user.
type PresetSource interface {
	GetLLMPreset(ctx context.Context, userID, id int64) (*model.LLMPreset, error)
	GetPromptPreset(ctx context.Context, userID, id int64) (*model.PromptPreset, error)
}

// Request names what to resolve.
type Request struct {
	// UserID zero means anonymous: defaults only.
	UserID int64
	Module Module
	// SLLM is the active backend selector. Zero means backend 1.
	SLLM int
}

// Resolver produces EffectiveLLMConfig values. It holds no cache; every call
// reads the stores again.
type Resolver struct {
	settings SettingsSource
	presets  PresetSource
	defaults Defaults
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for degraded store reads.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver. settings and presets may be nil, in which
// case every user resolves to the defaults.
func NewResolver(settings SettingsSource, presets PresetSource, defaults Defaults, opts ...Option) *Resolver {
	r := &Resolver{settings: settings, presets: presets, defaults: defaults, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve applies the precedence chain for req. Store failures degrade to
// "no override"; the only error returned is a *ConfigError (or an unknown module).
func (r *Resolver) Resolve(ctx context.Context, req Request) (model.EffectiveLLMConfig, error) {
	k, ok := moduleKeys[req.Module]
	if !ok {
		return model.EffectiveLLMConfig{}, fmt.Errorf("unknown module %q", req.Module)
	}
	cfg := r.defaults.start(req.Module, req.SLLM)

	if req.UserID != 0 {
		if s, ok := r.loadSettings(ctx, req.UserID); ok {
			r.applyUser(ctx, &cfg, req, k, s)
		}
	}

	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.APIKey == "" {
		return cfg, &ConfigError{Module: req.Module, Field: "api_key"}
	}
	if cfg.BaseURL == "" {
		return cfg, &ConfigError{Module: req.Module, Field: "base_url"}
	}
	return cfg, nil
}

func (r *Resolver) applyUser(ctx context.Context, cfg *model.EffectiveLLMConfig, req Request, k keys, s model.RecommendSettings) {
	presetID := k.llmPreset(s)
	if presetID == 0 {
		presetID = s.LLMPresetID
	}

	var preset *model.LLMPreset
	if presetID != 0 {
		preset = r.loadLLMPreset(ctx, req.UserID, int64(presetID))
	}

	var conn connection
	if preset != nil {
		conn = connection{
			apiKey:            preset.APIKey,
			baseURL:           preset.BaseURL,
			model:             preset.Model,
			temperature:       preset.Temperature,
			maxTokens:         preset.MaxTokens,
			inputHardLimit:    preset.InputHardLimit,
			inputSafetyMargin: preset.InputSafetyMargin,
		}
		cfg.Source = SourcePreset
		cfg.PresetID = preset.ID
	} else {
		conn = connection{
			apiKey:            s.LLMAPIKey,
			baseURL:           s.LLMBaseURL,
			model:             s.LLMModel,
			temperature:       s.Temperature,
			maxTokens:         s.MaxTokens,
			inputHardLimit:    s.InputHardLimit,
			inputSafetyMargin: s.InputSafetyMargin,
		}
		if conn.suppliesEndpoint() {
			cfg.Source = SourceUser
		}
	}
	conn.apply(cfg, k.inputLimits)

	// A user-supplied endpoint without a model gets the active backend's model.
	if conn.suppliesEndpoint() && strings.TrimSpace(conn.model) == "" {
		cfg.Model = firstNonEmpty(r.defaults.Backend(req.SLLM).Model, cfg.Model)
	}

	cfg.SystemPrompt = r.resolvePrompt(ctx, req.UserID, k, s, cfg.SystemPrompt)

	if k.sections {
		if cfg.SectionLimits == nil {
			cfg.SectionLimits = map[string]int{}
		}
		if cfg.SectionPrompts == nil {
			cfg.SectionPrompts = map[string]string{}
		}
		for _, sec := range model.Sections {
			if v := s.SectionLimit(sec); v != nil {
				cfg.SectionLimits[sec] = *v
			}
			cfg.SectionPrompts[sec] = r.promptOr(ctx, req.UserID, s.SectionPromptPreset(sec),
				firstNonEmpty(s.SectionPrompt(sec), cfg.SectionPrompts[sec]))
		}
		if s.HeadlineLimit != nil {
			cfg.HeadlineLimit = *s.HeadlineLimit
		}
	}
}

// resolvePrompt: module prompt preset, then generic prompt preset, then the raw
// per-user field, then the built-in prompt.
func (r *Resolver) resolvePrompt(ctx context.Context, userID int64, k keys, s model.RecommendSettings, fallback string) string {
	if k.rawPrompt != nil {
		fallback = firstNonEmpty(k.rawPrompt(s), fallback)
	}
	if k.promptPreset == nil {
		return fallback
	}
	id := k.promptPreset(s)
	if id == 0 {
		id = s.PromptPresetID
	}
	return r.promptOr(ctx, userID, id, fallback)
}

func (r *Resolver) promptOr(ctx context.Context, userID int64, id model.PresetID, fallback string) string {
	if id == 0 || r.presets == nil {
		return fallback
	}
	p, err := r.presets.GetPromptPreset(ctx, userID, int64(id))
	if err != nil {
		r.logger.Warn("prompt preset lookup failed", "user_id", userID, "preset_id", int64(id), "error", err)
		return fallback
	}
	if strings.TrimSpace(p.PromptContent) == "" {
		return fallback
	}
	return p.PromptContent
}

func (r *Resolver) loadSettings(ctx context.Context, userID int64) (model.RecommendSettings, bool) {
	if r.settings == nil {
		return model.RecommendSettings{}, false
	}
	blob, err := r.settings.GetRawSettings(ctx, userID, model.FeaturePaperRecommend)
	if err != nil {
		r.logger.Warn("user settings unavailable, using defaults", "user_id", userID, "error", err)
		return model.RecommendSettings{}, false
	}
	if blob == nil {
		return model.RecommendSettings{}, false
	}
	s, err := model.DecodeRecommendSettings(blob)
	if err != nil {
		r.logger.Warn("user settings unreadable, using defaults", "user_id", userID, "error", err)
		return model.RecommendSettings{}, false
	}
	return s, true
}

func (r *Resolver) loadLLMPreset(ctx context.Context, userID, id int64) *model.LLMPreset {
	if r.presets == nil {
		return nil
	}
	p, err := r.presets.GetLLMPreset(ctx, userID, id)
	if err != nil {
		r.logger.Warn("llm preset lookup failed, using user fields", "user_id", userID, "preset_id", id, "error", err)
		return nil
	}
	return p
}
