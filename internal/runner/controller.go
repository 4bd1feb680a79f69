// Package runner runs pipelines in the background for the HTTP API: one run
// at a time, with a pollable state record and best-effort cancellation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/yangwenmai/arxivdaily/internal/model"
	"github.com/yangwenmai/arxivdaily/internal/pipeline"
	"github.com/yangwenmai/arxivdaily/internal/store"
)

var (
	// ErrAlreadyRunning rejects a trigger while another run is live.
	ErrAlreadyRunning = errors.New("pipeline is already running")
	// ErrNotRunning rejects a cancel when nothing is running.
	ErrNotRunning = errors.New("no pipeline is running")
)

// failureTailLines is how many log lines a failed run keeps in history.
const failureTailLines = 20

// Orchestrator is the part of pipeline.Orchestrator the controller drives.
type Orchestrator interface {
	Registry() *pipeline.Registry
	Run(ctx context.Context, inv pipeline.Invocation) (*pipeline.Result, error)
}

// Request describes a run to start.
type Request struct {
	Pipeline string
	Context  model.RunContext
}

// Controller starts orchestrator runs on a background goroutine and tracks
// them in a StateStore.
type Controller struct {
	orch    Orchestrator
	state   *StateStore
	history store.RunHistory
	newID   func() string

	wg sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithHistory persists every finished run.
func WithHistory(h store.RunHistory) Option {
	return func(c *Controller) { c.history = h }
}

// NewController creates a controller. state must not be shared with another controller.
func NewController(orch Orchestrator, state *StateStore, opts ...Option) *Controller {
	c := &Controller{orch: orch, state: state, newID: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trigger starts a run and returns its id. It fails with ErrAlreadyRunning
// while another run is live, and with pipeline.ErrUnknownPipeline before
// anything starts.
func (c *Controller) Trigger(req Request) (string, error) {
	if _, err := c.orch.Registry().Pipeline(req.Pipeline); err != nil {
		return "", err
	}
	if !model.ValidDate(req.Context.RunDate) {
		return "", fmt.Errorf("invalid run date %q", req.Context.RunDate)
	}

	runID := c.newID()
	// The run outlives the request that started it.
	ctx, cancel := context.WithCancel(context.Background())
	params := req.Context.Params(req.Pipeline)
	if !c.state.begin(runID, params, cancel) {
		cancel()
		return "", ErrAlreadyRunning
	}
	c.state.AppendLog(fmt.Sprintf("Starting pipeline: %s date: %s", req.Pipeline, req.Context.RunDate))
	slog.Info("pipeline run started", "run_id", runID, "pipeline", req.Pipeline, "date", req.Context.RunDate)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.run(ctx, runID, req, params)
	}()
	return runID, nil
}

// Status returns a copy of the current run state.
func (c *Controller) Status() model.RunSnapshot {
	return c.state.Snapshot()
}

// Running reports whether a run is in progress.
func (c *Controller) Running() bool {
	return c.state.Running()
}

// Cancel asks the live run to stop and returns without waiting. The running
// step receives SIGTERM; the state flips to not running once it exits.
func (c *Controller) Cancel() error {
	cancel := c.state.requestCancel()
	if cancel == nil {
		return ErrNotRunning
	}
	c.state.AppendLog("[PIPELINE] stop requested")
	slog.Info("pipeline stop requested")
	cancel()
	return nil
}

// Wait blocks until every started run has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) run(ctx context.Context, runID string, req Request, params model.RunParams) {
	out := newLineWriter(c.state.AppendLog)
	_, err := c.orch.Run(ctx, pipeline.Invocation{
		Pipeline: req.Pipeline,
		Context:  req.Context,
		Output:   out,
		Observer: stateObserver{c.state},
	})
	out.Flush()

	code := exitCode(err)
	if err != nil {
		c.state.AppendLog("[ERROR] " + err.Error())
	}
	snap, lastStep := c.state.finish(code)

	if code == 0 {
		slog.Info("pipeline run finished", "run_id", runID, "pipeline", req.Pipeline)
	} else {
		slog.Error("pipeline run failed", "run_id", runID, "pipeline", req.Pipeline, "exit_code", code, "error", err)
	}
	c.record(runID, req, params, snap, lastStep, err)
}

func (c *Controller) record(runID string, req Request, params model.RunParams, snap model.RunSnapshot, lastStep string, runErr error) {
	if c.history == nil {
		return
	}
	rec := model.RunRecord{
		ID:         runID,
		Pipeline:   req.Pipeline,
		RunDate:    req.Context.RunDate,
		Params:     params,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
		ExitCode:   *snap.ExitCode,
		FinalStep:  snap.CurrentStep,
	}
	if runErr != nil {
		rec.Failure = &model.RunFailure{
			FailedStep: failedStep(runErr, lastStep),
			ExitCode:   rec.ExitCode,
			Message:    runErr.Error(),
			LogTail:    tail(snap.Logs, failureTailLines),
			FailedAt:   snap.FinishedAt,
		}
	}
	// The run context is already cancelled here.
	if err := c.history.SaveRun(context.Background(), rec); err != nil {
		slog.Error("failed to save run history", "run_id", runID, "error", err)
	}
}

// stepNamer is implemented by errors that carry a pipeline step name.
type stepNamer interface {
	StepName() string
}

func failedStep(err error, lastStep string) string {
	var sn stepNamer
	if errors.As(err, &sn) {
		return sn.StepName()
	}
	return lastStep
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var stepErr *pipeline.StepError
	if errors.As(err, &stepErr) && stepErr.ExitCode != 0 {
		return stepErr.ExitCode
	}
	return -1
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

// stateObserver feeds explicit orchestrator progress into the state record.
type stateObserver struct {
	state *StateStore
}

func (o stateObserver) StepSkipped(name string) { o.state.setStep("skipped: "+name, "") }
func (o stateObserver) StepStarted(name string) { o.state.setStep(name, name) }
func (o stateObserver) StepFinished(string, int) {}
