package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

const llmPresetColumns = `id, user_id, name, base_url, api_key, model, max_tokens, temperature, input_hard_limit, input_safety_margin, created_at, updated_at`

// ---------------------------------------------------------------------------
// LLM presets
// ---------------------------------------------------------------------------

// GetLLMPreset returns the preset only if userID owns it.
func (s *Store) GetLLMPreset(ctx context.Context, userID, id int64) (*model.LLMPreset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+llmPresetColumns+` FROM user_llm_presets WHERE id = ? AND user_id = ?`, id, userID)
	p, err := scanLLMPreset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListLLMPresets returns the user's presets, newest first.
func (s *Store) ListLLMPresets(ctx context.Context, userID int64) ([]model.LLMPreset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+llmPresetColumns+` FROM user_llm_presets WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presets []model.LLMPreset
	for rows.Next() {
		p, err := scanLLMPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, *p)
	}
	return presets, rows.Err()
}

// CreateLLMPreset inserts a preset and returns its id.
func (s *Store) CreateLLMPreset(ctx context.Context, p model.LLMPreset) (int64, error) {
	now := model.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_llm_presets (user_id, name, base_url, api_key, model, max_tokens, temperature, input_hard_limit, input_safety_margin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.BaseURL, p.APIKey, p.Model,
		p.MaxTokens, p.Temperature, p.InputHardLimit, p.InputSafetyMargin, now, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateLLMPreset rewrites every field of a preset owned by p.UserID.
func (s *Store) UpdateLLMPreset(ctx context.Context, p model.LLMPreset) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `
		UPDATE user_llm_presets SET name = ?, base_url = ?, api_key = ?, model = ?, max_tokens = ?,
			temperature = ?, input_hard_limit = ?, input_safety_margin = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		p.Name, p.BaseURL, p.APIKey, p.Model, p.MaxTokens,
		p.Temperature, p.InputHardLimit, p.InputSafetyMargin, model.Now(),
		p.ID, p.UserID,
	))
}

// DeleteLLMPreset removes a preset owned by userID.
func (s *Store) DeleteLLMPreset(ctx context.Context, userID, id int64) error {
	return affectedOrNotFound(s.db.ExecContext(ctx,
		`DELETE FROM user_llm_presets WHERE id = ? AND user_id = ?`, id, userID))
}

func scanLLMPreset(row scanner) (*model.LLMPreset, error) {
	var (
		p                            model.LLMPreset
		maxTokens, hardLimit, margin sql.NullInt64
		temperature                  sql.NullFloat64
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.BaseURL, &p.APIKey, &p.Model,
		&maxTokens, &temperature, &hardLimit, &margin, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.MaxTokens = nullInt(maxTokens)
	p.InputHardLimit = nullInt(hardLimit)
	p.InputSafetyMargin = nullInt(margin)
	if temperature.Valid {
		t := temperature.Float64
		p.Temperature = &t
	}
	return &p, nil
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// ---------------------------------------------------------------------------
// Prompt presets
// ---------------------------------------------------------------------------

// GetPromptPreset returns the preset only if userID owns it.
func (s *Store) GetPromptPreset(ctx context.Context, userID, id int64) (*model.PromptPreset, error) {
	var p model.PromptPreset
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, prompt_content, created_at, updated_at FROM user_prompt_presets WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.PromptContent, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPromptPresets returns the user's prompt presets, newest first.
func (s *Store) ListPromptPresets(ctx context.Context, userID int64) ([]model.PromptPreset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, prompt_content, created_at, updated_at FROM user_prompt_presets WHERE user_id = ? ORDER BY id DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presets []model.PromptPreset
	for rows.Next() {
		var p model.PromptPreset
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.PromptContent, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// CreatePromptPreset inserts a prompt preset and returns its id.
func (s *Store) CreatePromptPreset(ctx context.Context, p model.PromptPreset) (int64, error) {
	now := model.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_prompt_presets (user_id, name, prompt_content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.PromptContent, now, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdatePromptPreset rewrites a prompt preset owned by p.UserID.
func (s *Store) UpdatePromptPreset(ctx context.Context, p model.PromptPreset) error {
	return affectedOrNotFound(s.db.ExecContext(ctx,
		`UPDATE user_prompt_presets SET name = ?, prompt_content = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		p.Name, p.PromptContent, model.Now(), p.ID, p.UserID,
	))
}

// DeletePromptPreset removes a prompt preset owned by userID.
func (s *Store) DeletePromptPreset(ctx context.Context, userID, id int64) error {
	return affectedOrNotFound(s.db.ExecContext(ctx,
		`DELETE FROM user_prompt_presets WHERE id = ? AND user_id = ?`, id, userID))
}
