package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yangwenmai/arxivdaily/internal/llmconfig"
)

// ZoteroStep is dropped from every run unless the Zotero flag is on.
const ZoteroStep = "zotero_push"

// ArxivSearchStep is followed by the selected-count check.
const ArxivSearchStep = "arxiv_search"

var (
	// ErrUnknownPipeline is returned before anything runs.
	ErrUnknownPipeline = errors.New("unknown pipeline")
	// ErrUnknownStep is returned when a pipeline names an unregistered step.
	ErrUnknownStep = errors.New("unknown step")
)

// Step is one stage of the pipeline. Steps are defined at startup and never change.
type Step struct {
	Name string
	// Command is the executable followed by its base arguments.
	Command []string
	// Marker is the output path template relative to the data root, with
	// {date} standing for the run date. Empty means the step is never skipped.
	Marker string
	// AcceptsUserID steps get --user-id appended when a user is set.
	AcceptsUserID bool
	// Module is the LLM configuration the step resolves, empty for non-LLM steps.
	Module llmconfig.Module
}

// OutputMarker returns the marker path for date relative to the data root,
// or "" when the step declares none.
func (s Step) OutputMarker(date string) string {
	if s.Marker == "" {
		return ""
	}
	return filepath.FromSlash(strings.ReplaceAll(s.Marker, "{date}", date))
}

// stepDef is the static catalog entry a Step is built from.
type stepDef struct {
	name   string
	script string
	marker string
	userID bool
	module llmconfig.Module
}

var catalog = []stepDef{
	{name: "arxiv_search", script: "arxiv_search04.py", marker: "arxivList/md/{date}.md"},
	{name: "paperList_remove_duplications", script: "paperList_remove_duplications.py", marker: "paperList_remove_duplications/{date}.json"},
	{name: "llm_select_theme", script: "llm_select_theme.py", marker: "llm_select_theme/{date}.json", userID: true, module: llmconfig.ThemeSelect},
	{name: "paper_theme_filter", script: "paper_theme_filter.py", marker: "paper_theme_filter/{date}.json"},
	{name: "pdf_download", script: "pdf_download.py", marker: "raw_pdf/{date}/_manifest.json"},
	{name: "pdf_split", script: "pdf_split.py", marker: "preview_pdf/{date}/_manifest.json"},
	{name: "pdfsplite_to_minerU", script: "pdfsplite_to_minerU.py", marker: "preview_pdf_to_mineru/{date}/_manifest.json"},
	{name: "pdf_info", script: "pdf_info.py", marker: "pdf_info/{date}.json", userID: true, module: llmconfig.Org},
	{name: "instutions_filter", script: "instutions_filter.py", marker: "instutions_filter/{date}/{date}.json"},
	{name: "selectpaper", script: "selectpaper.py", marker: "selectedpaper/{date}/_manifest.json"},
	{name: "selectedpaper_to_mineru", script: "selectedpaper_to_mineru.py", marker: "selectedpaper_to_mineru/{date}/_manifest.json"},
	{name: "paper_summary", script: "paper_summary.py", marker: "paper_summary/single/{date}", userID: true, module: llmconfig.Summary},
	{name: "summary_limit", script: "summary_limit.py", marker: "summary_limit/single/{date}", userID: true, module: llmconfig.SummaryLimit},
	{name: "select_image", script: "select_image.py", marker: "select_image/{date}/select_image_{date}.json"},
	{name: "file_collect", script: "file_collect.py", marker: "file_collect/{date}"},
	{name: "paper_assets", script: "paper_assets.py", marker: "paper_assets/{date}.jsonl", userID: true, module: llmconfig.PaperAssets},
	{name: ZoteroStep, script: "zotero_push.py"},
}

// Options controls how step commands are built.
type Options struct {
	PythonBin     string
	ControllerDir string
}

// Registry is the ordered catalog of steps and the named pipelines over it.
type Registry struct {
	steps     map[string]Step
	order     []string
	pipelines map[string][]string
}

// NewRegistry builds the built-in catalog. Both built-in pipelines list every step.
func NewRegistry(opts Options) *Registry {
	if opts.PythonBin == "" {
		opts.PythonBin = "python"
	}
	if opts.ControllerDir == "" {
		opts.ControllerDir = "Controller"
	}
	r := &Registry{
		steps:     make(map[string]Step, len(catalog)),
		pipelines: make(map[string][]string),
	}
	for _, d := range catalog {
		r.steps[d.name] = Step{
			Name:          d.name,
			Command:       []string{opts.PythonBin, "-u", filepath.Join(opts.ControllerDir, d.script)},
			Marker:        d.marker,
			AcceptsUserID: d.userID,
			Module:        d.module,
		}
		r.order = append(r.order, d.name)
	}
	r.pipelines["default"] = append([]string(nil), r.order...)
	r.pipelines["daily"] = append([]string(nil), r.order...)
	return r
}

// Step returns a registered step.
func (r *Registry) Step(name string) (Step, error) {
	s, ok := r.steps[name]
	if !ok {
		return Step{}, fmt.Errorf("%w: %s", ErrUnknownStep, name)
	}
	return s, nil
}

// Steps returns every registered step in catalog order.
func (r *Registry) Steps() []Step {
	out := make([]Step, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.steps[name])
	}
	return out
}

// Pipeline returns the ordered steps of a named pipeline.
func (r *Registry) Pipeline(name string) ([]Step, error) {
	names, ok := r.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, name)
	}
	steps := make([]Step, 0, len(names))
	for _, n := range names {
		s, err := r.Step(n)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// Pipelines returns the sorted pipeline names.
func (r *Registry) Pipelines() []string {
	names := make([]string, 0, len(r.pipelines))
	for n := range r.pipelines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefinePipeline adds or replaces a pipeline. Every step must be registered
// and may appear only once.
func (r *Registry) DefinePipeline(name string, steps []string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("pipeline name is empty")
	}
	if len(steps) == 0 {
		return fmt.Errorf("pipeline %q has no steps", name)
	}
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if _, ok := r.steps[s]; !ok {
			return fmt.Errorf("pipeline %q: %w: %s", name, ErrUnknownStep, s)
		}
		if seen[s] {
			return fmt.Errorf("pipeline %q lists step %q twice", name, s)
		}
		seen[s] = true
	}
	r.pipelines[name] = append([]string(nil), steps...)
	return nil
}

// overrideStep replaces parts of a registered step.
func (r *Registry) overrideStep(name string, command []string, marker *string) error {
	s, ok := r.steps[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStep, name)
	}
	if len(command) > 0 {
		s.Command = append([]string(nil), command...)
	}
	if marker != nil {
		s.Marker = *marker
	}
	r.steps[name] = s
	return nil
}

// ForPipeline filters the steps a run executes: zotero_push only when zotero is on.
func ForPipeline(steps []Step, zotero bool) []Step {
	if zotero {
		return steps
	}
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		if s.Name != ZoteroStep {
			out = append(out, s)
		}
	}
	return out
}
