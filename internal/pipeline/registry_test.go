package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/arxivdaily/internal/llmconfig"
)

var wantOrder = []string{
	"arxiv_search", "paperList_remove_duplications", "llm_select_theme", "paper_theme_filter",
	"pdf_download", "pdf_split", "pdfsplite_to_minerU", "pdf_info", "instutions_filter",
	"selectpaper", "selectedpaper_to_mineru", "paper_summary", "summary_limit", "select_image",
	"file_collect", "paper_assets", "zotero_push",
}

func stepNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

func TestRegistry_BuiltinPipelines(t *testing.T) {
	r := NewRegistry(Options{})

	for _, name := range []string{"default", "daily"} {
		steps, err := r.Pipeline(name)
		require.NoError(t, err)
		assert.Equal(t, wantOrder, stepNames(steps), name)
	}
	assert.Equal(t, []string{"daily", "default"}, r.Pipelines())

	_, err := r.Pipeline("weekly")
	assert.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestRegistry_StepDetails(t *testing.T) {
	r := NewRegistry(Options{PythonBin: "/usr/bin/python3", ControllerDir: "/srv/Controller"})

	s, err := r.Step("arxiv_search")
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/bin/python3", "-u", filepath.Join("/srv/Controller", "arxiv_search04.py")}, s.Command)
	assert.False(t, s.AcceptsUserID)

	s, err = r.Step("summary_limit")
	require.NoError(t, err)
	assert.True(t, s.AcceptsUserID)
	assert.Equal(t, llmconfig.SummaryLimit, s.Module)

	var withUser []string
	for _, st := range r.Steps() {
		if st.AcceptsUserID {
			withUser = append(withUser, st.Name)
		}
	}
	assert.Equal(t, []string{"llm_select_theme", "pdf_info", "paper_summary", "summary_limit", "paper_assets"}, withUser)

	_, err = r.Step("nope")
	assert.ErrorIs(t, err, ErrUnknownStep)
}

func TestStep_OutputMarker(t *testing.T) {
	r := NewRegistry(Options{})
	tests := map[string]string{
		"arxiv_search":      "arxivList/md/2026-02-07.md",
		"pdf_download":      "raw_pdf/2026-02-07/_manifest.json",
		"instutions_filter": "instutions_filter/2026-02-07/2026-02-07.json",
		"paper_summary":     "paper_summary/single/2026-02-07",
		"select_image":      "select_image/2026-02-07/select_image_2026-02-07.json",
		"paper_assets":      "paper_assets/2026-02-07.jsonl",
		"zotero_push":       "",
	}
	for name, want := range tests {
		s, err := r.Step(name)
		require.NoError(t, err)
		assert.Equal(t, filepath.FromSlash(want), s.OutputMarker("2026-02-07"), name)
	}
}

func TestForPipeline_ZoteroExclusion(t *testing.T) {
	steps, err := NewRegistry(Options{}).Pipeline("daily")
	require.NoError(t, err)

	without := ForPipeline(steps, false)
	assert.Equal(t, wantOrder[:16], stepNames(without))
	assert.Equal(t, wantOrder, stepNames(ForPipeline(steps, true)))
}

func TestDefinePipeline_Validation(t *testing.T) {
	r := NewRegistry(Options{})

	require.NoError(t, r.DefinePipeline("quick", []string{"arxiv_search", "paper_summary"}))
	steps, err := r.Pipeline("quick")
	require.NoError(t, err)
	assert.Equal(t, []string{"arxiv_search", "paper_summary"}, stepNames(steps))

	assert.ErrorIs(t, r.DefinePipeline("bad", []string{"arxiv_search", "nope"}), ErrUnknownStep)
	assert.Error(t, r.DefinePipeline("dup", []string{"pdf_info", "pdf_info"}))
	assert.Error(t, r.DefinePipeline("empty", nil))
	assert.Error(t, r.DefinePipeline(" ", []string{"pdf_info"}))
}
