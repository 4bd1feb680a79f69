package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

// SaveRun records a finished run.
func (s *Store) SaveRun(ctx context.Context, rec model.RunRecord) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	var failure sql.NullString
	if rec.Failure != nil {
		failure = sql.NullString{String: rec.Failure.ToJSON(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, pipeline, run_date, params, started_at, finished_at, exit_code, final_step, failure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Pipeline, rec.RunDate, string(params), rec.StartedAt, rec.FinishedAt,
		rec.ExitCode, rec.FinalStep, failure,
	)
	return err
}

// ListRuns returns the most recent runs first. A non-positive limit means 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pipeline, run_date, params, started_at, finished_at, exit_code, final_step, failure
		FROM pipeline_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var (
			rec     model.RunRecord
			params  string
			failure sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Pipeline, &rec.RunDate, &params, &rec.StartedAt, &rec.FinishedAt,
			&rec.ExitCode, &rec.FinalStep, &failure); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("decode params for run %s: %w", rec.ID, err)
		}
		rec.Failure = model.ParseRunFailure(failure.String)
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}
