package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/arxivdaily/internal/llmconfig"
	"github.com/yangwenmai/arxivdaily/internal/model"
)

// fakeRunner records commands and lets tests script exit codes and side effects.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []Command
	codes   map[string]int
	errs    map[string]error
	effects map[string]func()
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		codes:   map[string]int{},
		errs:    map[string]error{},
		effects: map[string]func(){},
	}
}

func (f *fakeRunner) Run(_ context.Context, c Command) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if fn := f.effects[c.Step]; fn != nil {
		fn()
	}
	fmt.Fprintf(c.Output, "output of %s\n", c.Step)
	if err := f.errs[c.Step]; err != nil {
		return -1, err
	}
	return f.codes[c.Step], nil
}

func (f *fakeRunner) steps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = c.Step
	}
	return names
}

type recordingObserver struct {
	events []string
}

func (r *recordingObserver) StepSkipped(name string) { r.events = append(r.events, "skip:"+name) }
func (r *recordingObserver) StepStarted(name string) { r.events = append(r.events, "start:"+name) }
func (r *recordingObserver) StepFinished(name string, code int) {
	r.events = append(r.events, fmt.Sprintf("done:%s:%d", name, code))
}

const testDate = "2026-02-07"

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeRunner, string) {
	t.Helper()
	root := t.TempDir()
	runner := newFakeRunner()
	o := NewOrchestrator(NewRegistry(Options{PythonBin: "python", ControllerDir: "Controller"}), runner, root, WithBaseEnv([]string{"PATH=/usr/bin"}))
	return o, runner, root
}

// writeMarker creates the step's marker. Markers without an extension are directories.
func writeMarker(t *testing.T, o *Orchestrator, root, step string) {
	t.Helper()
	s, err := o.Registry().Step(step)
	require.NoError(t, err)
	p := filepath.Join(root, s.OutputMarker(testDate))
	if filepath.Ext(p) == "" {
		require.NoError(t, os.MkdirAll(p, 0o755))
		return
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
}

func writeReport(t *testing.T, root, date string, selected int) {
	t.Helper()
	dir := filepath.Join(root, SearchReportDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := fmt.Sprintf("# arXiv %s\n\n- Total: **40**\n- Selected: **%d**\n", date, selected)
	require.NoError(t, os.WriteFile(filepath.Join(dir, date+".md"), []byte(body), 0o644))
}

func TestOrchestrator_FreshRunWithoutZotero(t *testing.T) {
	o, runner, _ := newTestOrchestrator(t)
	var out bytes.Buffer

	res, err := o.Run(context.Background(), Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate},
		Output:   &out,
	})
	require.NoError(t, err)

	assert.Equal(t, wantOrder[:16], runner.steps())
	assert.Equal(t, wantOrder[:16], res.Ran)
	assert.Empty(t, res.Skipped)
	assert.False(t, res.StoppedEarly)

	log := out.String()
	assert.True(t, strings.HasPrefix(log, "START pipeline 'daily' with 16 step(s) RUN_DATE=2026-02-07 Zo=F\n"))
	assert.Contains(t, log, "RUN step: arxiv_search\noutput of arxiv_search\n")
	assert.True(t, strings.HasSuffix(log, "DONE pipeline 'daily'\n"))

	first := runner.calls[0]
	assert.Equal(t, []string{"python", "-u", filepath.Join("Controller", "arxiv_search04.py")}, first.Args)
	assert.Contains(t, first.Env, "RUN_DATE=2026-02-07")
	assert.Contains(t, first.Env, "ZO=F")
	assert.Contains(t, first.Env, "PATH=/usr/bin")
}

func TestOrchestrator_ZoteroRunsLast(t *testing.T) {
	o, runner, _ := newTestOrchestrator(t)

	_, err := o.Run(context.Background(), Invocation{
		Pipeline: "default",
		Context:  model.RunContext{RunDate: testDate, Zotero: true},
	})
	require.NoError(t, err)
	assert.Equal(t, wantOrder, runner.steps())
}

func TestOrchestrator_SkipsExistingMarkers(t *testing.T) {
	o, runner, root := newTestOrchestrator(t)
	for _, s := range wantOrder[:5] {
		writeMarker(t, o, root, s)
	}
	writeReport(t, root, testDate, 12)
	var out bytes.Buffer
	obs := &recordingObserver{}

	res, err := o.Run(context.Background(), Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate},
		Output:   &out,
		Observer: obs,
	})
	require.NoError(t, err)

	assert.Equal(t, wantOrder[:5], res.Skipped)
	assert.Equal(t, wantOrder[5:16], runner.steps())
	assert.Contains(t, out.String(), "SKIP step: arxiv_search (output exists for 2026-02-07)\n")
	assert.Equal(t, "skip:arxiv_search", obs.events[0])
	assert.Equal(t, "start:pdf_split", obs.events[5])
	assert.Equal(t, "done:pdf_split:0", obs.events[6])
}

func TestOrchestrator_RerunIsIdempotent(t *testing.T) {
	o, runner, root := newTestOrchestrator(t)
	for _, s := range wantOrder[:16] {
		writeMarker(t, o, root, s)
	}

	res, err := o.Run(context.Background(), Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate},
	})
	require.NoError(t, err)
	assert.Empty(t, runner.steps())
	assert.Len(t, res.Skipped, 16)
}

func TestOrchestrator_StopsWhenNothingSelected(t *testing.T) {
	o, runner, root := newTestOrchestrator(t)
	runner.effects["arxiv_search"] = func() { writeReport(t, root, testDate, 0) }
	var out bytes.Buffer

	res, err := o.Run(context.Background(), Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate},
		Output:   &out,
	})
	require.NoError(t, err)
	assert.True(t, res.StoppedEarly)
	assert.Equal(t, []string{"arxiv_search"}, runner.steps())
	assert.Contains(t, out.String(), "[PIPELINE] No papers selected for 2026-02-07; stop after arxiv_search.\n")
	assert.NotContains(t, out.String(), "DONE pipeline")
}

func TestOrchestrator_ContinuesWhenPapersSelected(t *testing.T) {
	o, runner, root := newTestOrchestrator(t)
	runner.effects["arxiv_search"] = func() { writeReport(t, root, testDate, 3) }

	res, err := o.Run(context.Background(), Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate},
	})
	require.NoError(t, err)
	assert.False(t, res.StoppedEarly)
	assert.Len(t, runner.steps(), 16)
}

func TestOrchestrator_FailureThenResume(t *testing.T) {
	o, runner, root := newTestOrchestrator(t)
	runner.codes["pdf_split"] = 2
	for _, s := range wantOrder[:5] {
		name := s
		runner.effects[name] = func() { writeMarker(t, o, root, name) }
	}
	writeReport(t, root, testDate, 4)

	res, err := o.Run(context.Background(), Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate},
	})
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "pdf_split", stepErr.Step)
	assert.Equal(t, 2, stepErr.ExitCode)
	assert.Equal(t, wantOrder[:6], res.Ran)

	// Second attempt resumes at the failed step.
	runner.calls = nil
	runner.codes["pdf_split"] = 0
	res, err = o.Run(context.Background(), Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate},
	})
	require.NoError(t, err)
	assert.Equal(t, wantOrder[:5], res.Skipped)
	assert.Equal(t, wantOrder[5:16], runner.steps())
}

func TestOrchestrator_RunnerErrorIsStepError(t *testing.T) {
	o, runner, _ := newTestOrchestrator(t)
	boom := errors.New("exec: not found")
	runner.errs["arxiv_search"] = boom
	obs := &recordingObserver{}

	_, err := o.Run(context.Background(), Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate},
		Observer: obs,
	})
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, -1, stepErr.ExitCode)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start:arxiv_search", "done:arxiv_search:-1"}, obs.events)
}

func TestOrchestrator_ArgsAndUserID(t *testing.T) {
	o, runner, _ := newTestOrchestrator(t)

	_, err := o.Run(context.Background(), Invocation{
		Pipeline:  "daily",
		Context:   model.RunContext{RunDate: testDate, SLLM: 2, UserID: 7},
		ExtraArgs: []string{"--max", "50"},
	})
	require.NoError(t, err)

	byStep := map[string]Command{}
	for _, c := range runner.calls {
		byStep[c.Step] = c
	}
	assert.Equal(t, []string{"--max", "50"}, byStep["arxiv_search"].Args[3:])
	assert.NotContains(t, byStep["paperList_remove_duplications"].Args, "--max")
	assert.Equal(t, []string{"--user-id", "7"}, byStep["paper_summary"].Args[3:])
	assert.Equal(t, []string{"--user-id", "7"}, byStep["llm_select_theme"].Args[3:])
	assert.Len(t, byStep["pdf_download"].Args, 3)
	assert.Contains(t, byStep["pdf_download"].Env, "SLLM=2")
	assert.Contains(t, byStep["pdf_download"].Env, "PIPELINE_USER_ID=7")
}

func TestOrchestrator_UnknownPipeline(t *testing.T) {
	o, runner, _ := newTestOrchestrator(t)
	var out bytes.Buffer

	_, err := o.Run(context.Background(), Invocation{Pipeline: "weekly", Output: &out})
	assert.ErrorIs(t, err, ErrUnknownPipeline)
	assert.Empty(t, runner.steps())
	assert.Empty(t, out.String())
}

func TestOrchestrator_CancelledBeforeNextStep(t *testing.T) {
	o, runner, _ := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	runner.effects["paperList_remove_duplications"] = cancel

	res, err := o.Run(ctx, Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"arxiv_search", "paperList_remove_duplications"}, res.Ran)
}

// fakeResolver resolves every module to a fixed config unless it is listed in fail.
type fakeResolver struct {
	mu   sync.Mutex
	reqs []llmconfig.Request
	fail map[llmconfig.Module]error
}

func (f *fakeResolver) Resolve(_ context.Context, req llmconfig.Request) (model.EffectiveLLMConfig, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if err := f.fail[req.Module]; err != nil {
		return model.EffectiveLLMConfig{}, err
	}
	return model.EffectiveLLMConfig{APIKey: "k", BaseURL: "https://llm", Model: string(req.Module)}, nil
}

func TestOrchestrator_MissingCredentialsStopBeforeAnyStep(t *testing.T) {
	root := t.TempDir()
	runner := newFakeRunner()
	reg := NewRegistry(Options{PythonBin: "python", ControllerDir: "Controller"})
	o := NewOrchestrator(reg, runner, root,
		WithBaseEnv([]string{"PATH=/usr/bin"}),
		WithResolver(llmconfig.NewResolver(nil, nil, llmconfig.Defaults{})))
	obs := &recordingObserver{}
	var out bytes.Buffer

	_, err := o.Run(context.Background(), Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate},
		Output:   &out,
		Observer: obs,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, llmconfig.ErrMissingCredentials)

	var pe *PreflightError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "llm_select_theme", pe.StepName())
	assert.Equal(t, llmconfig.ThemeSelect, pe.Module)

	assert.Empty(t, runner.steps())
	assert.Empty(t, obs.events)
	assert.Contains(t, out.String(), "[CONFIG] step llm_select_theme: llm config theme_select:")
	assert.NotContains(t, out.String(), "RUN step:")
}

func TestOrchestrator_ResolvesEachPendingModuleOnce(t *testing.T) {
	o, runner, root := newTestOrchestrator(t)
	resolver := &fakeResolver{}
	var checked []string
	WithResolver(resolver)(o)
	WithConfigCheck(func(_ context.Context, step Step, cfg model.EffectiveLLMConfig) error {
		checked = append(checked, step.Name+"="+cfg.Model)
		return nil
	})(o)
	writeMarker(t, o, root, "llm_select_theme")

	_, err := o.Run(context.Background(), Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate, UserID: 7, SLLM: 2},
	})
	require.NoError(t, err)

	var modules []llmconfig.Module
	for _, r := range resolver.reqs {
		assert.Equal(t, int64(7), r.UserID)
		assert.Equal(t, 2, r.SLLM)
		modules = append(modules, r.Module)
	}
	assert.Equal(t, []llmconfig.Module{llmconfig.Org, llmconfig.Summary, llmconfig.SummaryLimit, llmconfig.PaperAssets}, modules)
	assert.Equal(t, []string{"pdf_info=org", "paper_summary=summary", "summary_limit=summary_limit", "paper_assets=paper_assets"}, checked)
	assert.Len(t, runner.steps(), 15)
}

func TestOrchestrator_FailedConfigCheckStopsRun(t *testing.T) {
	o, runner, _ := newTestOrchestrator(t)
	WithResolver(&fakeResolver{})(o)
	WithConfigCheck(func(_ context.Context, step Step, _ model.EffectiveLLMConfig) error {
		if step.Module == llmconfig.Summary {
			return errors.New("endpoint unreachable")
		}
		return nil
	})(o)

	_, err := o.Run(context.Background(), Invocation{
		Pipeline: "daily",
		Context:  model.RunContext{RunDate: testDate},
	})
	var pe *PreflightError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "paper_summary", pe.Step)
	assert.EqualError(t, err, "step paper_summary: llm config summary: endpoint unreachable")
	assert.Empty(t, runner.steps())
}
