// Package pipeline runs the daily arXiv pipeline: a fixed, ordered list of
// external step programs, each skipped when its dated output marker already
// exists, executed strictly one after another.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/yangwenmai/arxivdaily/internal/llmconfig"
	"github.com/yangwenmai/arxivdaily/internal/model"
)

// StepError reports a step that exited non-zero or could not be started.
type StepError struct {
	Step     string
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %s failed (exit code %d): %v", e.Step, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("step %s failed (exit code %d)", e.Step, e.ExitCode)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepName returns the failing step.
func (e *StepError) StepName() string {
	return e.Step
}

// PreflightError reports an LLM step whose configuration could not be resolved
// or failed its check. It is returned before any step process starts.
type PreflightError struct {
	Step   string
	Module llmconfig.Module
	Err    error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("step %s: llm config %s: %v", e.Step, e.Module, e.Err)
}

func (e *PreflightError) Unwrap() error {
	return e.Err
}

// StepName returns the step whose configuration failed.
func (e *PreflightError) StepName() string {
	return e.Step
}

// ConfigResolver resolves the LLM configuration a step will run with.
type ConfigResolver interface {
	Resolve(ctx context.Context, req llmconfig.Request) (model.EffectiveLLMConfig, error)
}

// ConfigCheck inspects a resolved configuration before the run starts, for
// example by sending it a test prompt.
type ConfigCheck func(ctx context.Context, step Step, cfg model.EffectiveLLMConfig) error

// Observer receives explicit progress events. Implementations must not block.
type Observer interface {
	StepSkipped(name string)
	StepStarted(name string)
	StepFinished(name string, exitCode int)
}

// Invocation is one orchestrator run.
type Invocation struct {
	Pipeline string
	Context  model.RunContext
	// ExtraArgs are appended to the first step's command only.
	ExtraArgs []string
	// Output receives banner lines and every step's combined output.
	Output   io.Writer
	Observer Observer
}

// Result summarizes a finished run.
type Result struct {
	Pipeline string   `json:"pipeline"`
	RunDate  string   `json:"run_date"`
	Ran      []string `json:"ran"`
	Skipped  []string `json:"skipped"`
	// StoppedEarly is set when the search selected zero papers.
	StoppedEarly bool `json:"stopped_early"`
}

// Orchestrator executes pipelines from a Registry.
type Orchestrator struct {
	registry *Registry
	runner   Runner
	dataRoot string
	workDir  string
	baseEnv  []string
	resolver ConfigResolver
	check    ConfigCheck
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithWorkDir sets the directory steps start in.
func WithWorkDir(dir string) OrchestratorOption {
	return func(o *Orchestrator) { o.workDir = dir }
}

// WithBaseEnv replaces the parent environment steps inherit (default os.Environ()).
func WithBaseEnv(env []string) OrchestratorOption {
	return func(o *Orchestrator) { o.baseEnv = env }
}

// WithResolver makes Run resolve the configuration of every pending LLM step
// before the first step starts.
func WithResolver(r ConfigResolver) OrchestratorOption {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithConfigCheck runs fn on each resolved configuration. It has no effect without WithResolver.
func WithConfigCheck(fn ConfigCheck) OrchestratorOption {
	return func(o *Orchestrator) { o.check = fn }
}

// NewOrchestrator creates an orchestrator writing markers under dataRoot.
func NewOrchestrator(reg *Registry, runner Runner, dataRoot string, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{registry: reg, runner: runner, dataRoot: dataRoot}
	for _, opt := range opts {
		opt(o)
	}
	if o.baseEnv == nil {
		o.baseEnv = os.Environ()
	}
	return o
}

// Registry returns the step catalog the orchestrator runs from.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// MarkerExists reports whether step's output marker exists for date, as a file or directory.
func (o *Orchestrator) MarkerExists(step Step, date string) bool {
	rel := step.OutputMarker(date)
	if rel == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(o.dataRoot, rel))
	return err == nil
}

// Run executes inv. Unknown pipelines and unresolvable LLM configuration
// (*PreflightError) fail before any step starts. The first non-zero exit
// stops the run with a *StepError; zero selected papers after arxiv_search
// stops it successfully.
func (o *Orchestrator) Run(ctx context.Context, inv Invocation) (*Result, error) {
	steps, err := o.registry.Pipeline(inv.Pipeline)
	if err != nil {
		return nil, err
	}
	steps = ForPipeline(steps, inv.Context.Zotero)

	out := inv.Output
	if out == nil {
		out = io.Discard
	}
	obs := inv.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	rc := inv.Context
	env := StepEnv(o.baseEnv, rc)
	res := &Result{Pipeline: inv.Pipeline, RunDate: rc.RunDate, Ran: []string{}, Skipped: []string{}}

	fmt.Fprintf(out, "START pipeline '%s' with %d step(s) RUN_DATE=%s Zo=%s\n",
		inv.Pipeline, len(steps), rc.RunDate, rc.ZoFlag())

	if err := o.preflight(ctx, steps, rc); err != nil {
		fmt.Fprintf(out, "[CONFIG] %v\n", err)
		return res, err
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if o.MarkerExists(step, rc.RunDate) {
			fmt.Fprintf(out, "SKIP step: %s (output exists for %s)\n", step.Name, rc.RunDate)
			obs.StepSkipped(step.Name)
			res.Skipped = append(res.Skipped, step.Name)
			continue
		}

		fmt.Fprintf(out, "RUN step: %s\n", step.Name)
		obs.StepStarted(step.Name)
		code, err := o.runner.Run(ctx, Command{
			Step:   step.Name,
			Args:   o.commandFor(step, i, rc, inv.ExtraArgs),
			Env:    env,
			Dir:    o.workDir,
			Output: out,
		})
		if err != nil {
			obs.StepFinished(step.Name, -1)
			return res, &StepError{Step: step.Name, ExitCode: -1, Err: err}
		}
		obs.StepFinished(step.Name, code)
		res.Ran = append(res.Ran, step.Name)
		if code != 0 {
			return res, &StepError{Step: step.Name, ExitCode: code}
		}

		if step.Name == ArxivSearchStep {
			if n, ok := DetectSelectedCount(o.dataRoot, rc.RunDate); ok && n == 0 {
				fmt.Fprintf(out, "[PIPELINE] No papers selected for %s; stop after %s.\n", rc.RunDate, ArxivSearchStep)
				res.StoppedEarly = true
				return res, nil
			}
		}
	}

	fmt.Fprintf(out, "DONE pipeline '%s'\n", inv.Pipeline)
	return res, nil
}

// preflight resolves each distinct module used by a step that will run.
func (o *Orchestrator) preflight(ctx context.Context, steps []Step, rc model.RunContext) error {
	if o.resolver == nil {
		return nil
	}
	seen := make(map[llmconfig.Module]bool)
	for _, step := range steps {
		if step.Module == "" || seen[step.Module] || o.MarkerExists(step, rc.RunDate) {
			continue
		}
		seen[step.Module] = true
		cfg, err := o.resolver.Resolve(ctx, llmconfig.Request{UserID: rc.UserID, Module: step.Module, SLLM: rc.SLLM})
		if err != nil {
			return &PreflightError{Step: step.Name, Module: step.Module, Err: err}
		}
		if o.check != nil {
			if err := o.check(ctx, step, cfg); err != nil {
				return &PreflightError{Step: step.Name, Module: step.Module, Err: err}
			}
		}
	}
	return nil
}

func (o *Orchestrator) commandFor(step Step, index int, rc model.RunContext, extra []string) []string {
	args := append([]string(nil), step.Command...)
	if index == 0 {
		args = append(args, extra...)
	}
	if step.AcceptsUserID && rc.UserID != 0 {
		args = append(args, "--user-id", fmt.Sprint(rc.UserID))
	}
	return args
}

type nopObserver struct{}

func (nopObserver) StepSkipped(string)       {}
func (nopObserver) StepStarted(string)       {}
func (nopObserver) StepFinished(string, int) {}
