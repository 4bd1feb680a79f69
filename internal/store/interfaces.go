package store

import (
	"context"
	"errors"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

// ErrNotFound is returned when a record does not exist or is owned by another user.
var ErrNotFound = errors.New("not found")

// SettingsReader provides read access to per-user feature settings.
type SettingsReader interface {
	// GetRawSettings returns the stored blob, or nil when the user has none.
	GetRawSettings(ctx context.Context, userID int64, feature string) ([]byte, error)
	// GetSettings returns the stored values merged over the feature defaults.
	GetSettings(ctx context.Context, userID int64, feature string) (map[string]any, error)
}

// SettingsWriter provides write access to per-user feature settings.
type SettingsWriter interface {
	SaveSettings(ctx context.Context, userID int64, feature string, settings map[string]any) error
}

// PresetReader looks up presets scoped to their owner.
type PresetReader interface {
	GetLLMPreset(ctx context.Context, userID, id int64) (*model.LLMPreset, error)
	GetPromptPreset(ctx context.Context, userID, id int64) (*model.PromptPreset, error)
}

// PresetWriter manages a user's presets.
type PresetWriter interface {
	ListLLMPresets(ctx context.Context, userID int64) ([]model.LLMPreset, error)
	CreateLLMPreset(ctx context.Context, p model.LLMPreset) (int64, error)
	UpdateLLMPreset(ctx context.Context, p model.LLMPreset) error
	DeleteLLMPreset(ctx context.Context, userID, id int64) error
	ListPromptPresets(ctx context.Context, userID int64) ([]model.PromptPreset, error)
	CreatePromptPreset(ctx context.Context, p model.PromptPreset) (int64, error)
	UpdatePromptPreset(ctx context.Context, p model.PromptPreset) error
	DeletePromptPreset(ctx context.Context, userID, id int64) error
}

// RunHistory persists finished pipeline runs.
type RunHistory interface {
	SaveRun(ctx context.Context, rec model.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
}

// Repository combines everything the API layer needs.
type Repository interface {
	SettingsReader
	SettingsWriter
	PresetReader
	PresetWriter
	RunHistory
}
