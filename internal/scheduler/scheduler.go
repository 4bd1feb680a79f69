// Package scheduler fires one pipeline run per calendar day at a configured
// local time.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/yangwenmai/arxivdaily/internal/model"
	"github.com/yangwenmai/arxivdaily/internal/runner"
)

// Trigger starts runs. *runner.Controller implements it.
type Trigger interface {
	Running() bool
	Trigger(req runner.Request) (string, error)
}

// ConfigStore loads and saves the schedule.
type ConfigStore interface {
	Load() (model.ScheduleConfig, error)
	Save(cfg model.ScheduleConfig) error
}

// Scheduler checks the wall clock every interval and triggers the configured
// pipeline once per day.
type Scheduler struct {
	trigger  Trigger
	store    ConfigStore
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	cfg     model.ScheduleConfig
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler with the persisted configuration. A configuration
// that cannot be read is logged and replaced by the defaults.
func New(trigger Trigger, store ConfigStore, interval time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s := &Scheduler{trigger: trigger, store: store, interval: interval, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	cfg, err := store.Load()
	if err != nil {
		slog.Error("failed to load schedule, using defaults", "error", err)
	}
	s.cfg = cfg
	return s
}

// Config returns the current schedule.
func (s *Scheduler) Config() model.ScheduleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetConfig replaces the schedule and persists it before returning.
// last_run_date is owned by the scheduler and survives updates.
func (s *Scheduler) SetConfig(cfg model.ScheduleConfig) (model.ScheduleConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.LastRunDate = s.cfg.LastRunDate
	if err := s.store.Save(cfg); err != nil {
		return s.cfg, err
	}
	s.cfg = cfg
	slog.Info("schedule updated", "enabled", cfg.Enabled, "hour", cfg.Hour, "minute", cfg.Minute, "pipeline", cfg.Pipeline)
	return cfg, nil
}

// Start runs the tick loop until ctx is cancelled. Calling Start while the
// loop is already running returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
	}()

	slog.Info("scheduler started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.tick(s.now())
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// tick triggers a run when now matches the configured time, nothing ran
// today and no run is live. A busy tick is dropped, not retried.
func (s *Scheduler) tick(now time.Time) bool {
	cfg := s.Config()
	if !cfg.Enabled || now.Hour() != cfg.Hour || now.Minute() != cfg.Minute {
		return false
	}
	today := model.Today(now)
	if cfg.LastRunDate == today {
		return false
	}
	if s.trigger.Running() {
		slog.Info("scheduled run skipped, pipeline busy", "date", today)
		return false
	}

	runID, err := s.trigger.Trigger(runner.Request{Pipeline: cfg.Pipeline, Context: cfg.RunContext(today)})
	if errors.Is(err, runner.ErrAlreadyRunning) {
		slog.Info("scheduled run skipped, pipeline busy", "date", today)
		return false
	}
	if err != nil {
		slog.Error("scheduled run failed to start", "pipeline", cfg.Pipeline, "date", today, "error", err)
		return false
	}
	slog.Info("scheduled run started", "run_id", runID, "pipeline", cfg.Pipeline, "date", today)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.LastRunDate = today
	if err := s.store.Save(s.cfg); err != nil {
		slog.Error("failed to persist last run date", "date", today, "error", err)
	}
	return true
}
