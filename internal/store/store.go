package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

// Verify at compile time that Store implements all interfaces.
var (
	_ SettingsReader = (*Store)(nil)
	_ SettingsWriter = (*Store)(nil)
	_ PresetReader   = (*Store)(nil)
	_ PresetWriter   = (*Store)(nil)
	_ RunHistory     = (*Store)(nil)
)

// Store provides data access to the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// currentSchemaVersion is bumped whenever the schema changes.
// Add a new migration function in the migrations slice below.
const currentSchemaVersion = 3

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// Index 0 = migration from v0 to v1, etc.
	migrations := []func() error{
		s.migrateV1, // v0 → v1: user_settings
		s.migrateV2, // v1 → v2: llm and prompt presets
		s.migrateV3, // v2 → v3: pipeline run history
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Store) migrateV1() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS user_settings (
		user_id       INTEGER NOT NULL,
		feature       TEXT    NOT NULL,
		settings_json TEXT    NOT NULL DEFAULT '{}',
		updated_at    TEXT    NOT NULL,
		PRIMARY KEY (user_id, feature)
	)`)
	return err
}

func (s *Store) migrateV2() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS user_llm_presets (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id             INTEGER NOT NULL,
		name                TEXT    NOT NULL,
		base_url            TEXT    NOT NULL DEFAULT '',
		api_key             TEXT    NOT NULL DEFAULT '',
		model               TEXT    NOT NULL DEFAULT '',
		max_tokens          INTEGER,
		temperature         REAL,
		input_hard_limit    INTEGER,
		input_safety_margin INTEGER,
		created_at          TEXT    NOT NULL,
		updated_at          TEXT    NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_llm_presets_user ON user_llm_presets(user_id);

	CREATE TABLE IF NOT EXISTS user_prompt_presets (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id        INTEGER NOT NULL,
		name           TEXT    NOT NULL,
		prompt_content TEXT    NOT NULL DEFAULT '',
		created_at     TEXT    NOT NULL,
		updated_at     TEXT    NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prompt_presets_user ON user_prompt_presets(user_id);
	`)
	return err
}

func (s *Store) migrateV3() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id          TEXT PRIMARY KEY,
		pipeline    TEXT    NOT NULL,
		run_date    TEXT    NOT NULL,
		params      TEXT    NOT NULL,
		started_at  TEXT    NOT NULL,
		finished_at TEXT    NOT NULL,
		exit_code   INTEGER NOT NULL,
		final_step  TEXT    NOT NULL,
		failure     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at DESC);
	`)
	return err
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetRawSettings returns the user's stored blob for feature, or nil if none.
func (s *Store) GetRawSettings(ctx context.Context, userID int64, feature string) ([]byte, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT settings_json FROM user_settings WHERE user_id = ? AND feature = ?`, userID, feature,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(blob), nil
}

// GetSettings returns the stored values merged over the feature defaults.
// A corrupt blob is treated as empty.
func (s *Store) GetSettings(ctx context.Context, userID int64, feature string) (map[string]any, error) {
	blob, err := s.GetRawSettings(ctx, userID, feature)
	if err != nil {
		return nil, err
	}
	user := map[string]any{}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &user); err != nil {
			user = map[string]any{}
		}
	}
	return model.MergeSettings(feature, user), nil
}

// SaveSettings upserts the whole blob for (user, feature).
func (s *Store) SaveSettings(ctx context.Context, userID int64, feature string, settings map[string]any) error {
	if settings == nil {
		settings = map[string]any{}
	}
	b, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, feature, settings_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, feature) DO UPDATE SET
			settings_json = excluded.settings_json,
			updated_at = excluded.updated_at`,
		userID, feature, string(b), model.Now(),
	)
	return err
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
