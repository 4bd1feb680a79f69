package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/yangwenmai/arxivdaily/internal/model"
	"github.com/yangwenmai/arxivdaily/internal/pipeline"
	"github.com/yangwenmai/arxivdaily/internal/runner"
)

// ---------------------------------------------------------------------------
// POST /api/admin/pipeline/run
// ---------------------------------------------------------------------------

type runRequest struct {
	Pipeline string `json:"pipeline"`
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	SLLM     *int   `json:"sllm" validate:"omitempty,min=1,max=3"`
	Zo       string `json:"zo" validate:"omitempty,oneof=T F"`
	UserID   *int64 `json:"user_id" validate:"omitempty,min=1"`
}

func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !s.decodeAndValidate(w, r, &req, true) {
		return
	}
	if req.Pipeline == "" {
		req.Pipeline = "default"
	}
	if req.Date == "" {
		req.Date = s.today()
	}
	rc := model.RunContext{RunDate: req.Date, Zotero: req.Zo == model.ZoteroOn}
	if req.SLLM != nil {
		rc.SLLM = *req.SLLM
	}
	if req.UserID != nil {
		rc.UserID = *req.UserID
	}

	runID, err := s.Runs.Trigger(runner.Request{Pipeline: req.Pipeline, Context: rc})
	switch {
	case errors.Is(err, runner.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "pipeline is already running, wait for it to finish")
		return
	case errors.Is(err, pipeline.ErrUnknownPipeline):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to start pipeline")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"run_id":  runID,
		"message": fmt.Sprintf("pipeline '%s' started, date: %s", req.Pipeline, req.Date),
	})
}

// ---------------------------------------------------------------------------
// GET /api/admin/pipeline/status
// ---------------------------------------------------------------------------

func (s *Server) handlePipelineStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Runs.Status())
}

// ---------------------------------------------------------------------------
// POST /api/admin/pipeline/stop
// ---------------------------------------------------------------------------

func (s *Server) handleStopPipeline(w http.ResponseWriter, _ *http.Request) {
	if err := s.Runs.Cancel(); err != nil {
		if errors.Is(err, runner.ErrNotRunning) {
			writeError(w, http.StatusBadRequest, "no pipeline is running")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to stop pipeline")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "termination signal sent"})
}

// ---------------------------------------------------------------------------
// GET /api/admin/pipeline/runs
// ---------------------------------------------------------------------------

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 0 and 200")
			return
		}
		limit = n
	}
	runs, err := s.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// ---------------------------------------------------------------------------
// GET /api/pipeline/steps?date=
// ---------------------------------------------------------------------------

type stepStatus struct {
	Step      string `json:"step"`
	Completed bool   `json:"completed"`
}

func (s *Server) handleStepStatus(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.today()
	}
	if !model.ValidDate(date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	steps := s.Steps.Registry().Steps()
	out := make([]stepStatus, 0, len(steps))
	for _, st := range steps {
		out = append(out, stepStatus{Step: st.Name, Completed: s.Steps.MarkerExists(st, date)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "steps": out})
}

// ---------------------------------------------------------------------------
// GET/POST /api/admin/schedule
// ---------------------------------------------------------------------------

type scheduleRequest struct {
	Enabled  *bool  `json:"enabled" validate:"required"`
	Hour     *int   `json:"hour" validate:"omitempty,min=0,max=23"`
	Minute   *int   `json:"minute" validate:"omitempty,min=0,max=59"`
	Pipeline string `json:"pipeline"`
	SLLM     *int   `json:"sllm" validate:"omitempty,min=1,max=3"`
	Zo       string `json:"zo" validate:"omitempty,oneof=T F"`
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Schedule.Config())
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !s.decodeAndValidate(w, r, &req, false) {
		return
	}

	cfg := model.DefaultSchedule()
	cfg.Enabled = *req.Enabled
	if req.Hour != nil {
		cfg.Hour = *req.Hour
	}
	if req.Minute != nil {
		cfg.Minute = *req.Minute
	}
	if req.Pipeline != "" {
		cfg.Pipeline = req.Pipeline
	}
	if req.Zo != "" {
		cfg.Zo = req.Zo
	}
	cfg.SLLM = req.SLLM
	if _, err := s.Steps.Registry().Pipeline(cfg.Pipeline); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := s.Schedule.SetConfig(cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save schedule")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "schedule": saved})
}
