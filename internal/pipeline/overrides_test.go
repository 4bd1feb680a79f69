package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOverrides(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pipelines.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestOverrides_Apply(t *testing.T) {
	path := writeOverrides(t, `
steps:
  arxiv_search:
    command: ["python3", "-u", "Controller/arxiv_search05.py"]
  file_collect:
    marker: "collected/{date}.zip"
pipelines:
  quick: [arxiv_search, paper_summary]
`)
	ov, err := LoadOverrides(path)
	require.NoError(t, err)

	r := NewRegistry(Options{})
	require.NoError(t, ov.Apply(r))

	s, err := r.Step("arxiv_search")
	require.NoError(t, err)
	assert.Equal(t, []string{"python3", "-u", "Controller/arxiv_search05.py"}, s.Command)
	assert.Equal(t, "arxivList/md/{date}.md", s.Marker)

	s, err = r.Step("file_collect")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("collected/2026-02-07.zip"), s.OutputMarker("2026-02-07"))

	steps, err := r.Pipeline("quick")
	require.NoError(t, err)
	assert.Equal(t, []string{"arxiv_search", "paper_summary"}, stepNames(steps))
	assert.Equal(t, []string{"daily", "default", "quick"}, r.Pipelines())
}

func TestOverrides_Errors(t *testing.T) {
	ov, err := LoadOverrides(writeOverrides(t, "steps:\n  new_step:\n    command: [x]\n"))
	require.NoError(t, err)
	assert.ErrorIs(t, ov.Apply(NewRegistry(Options{})), ErrUnknownStep)

	ov, err = LoadOverrides(writeOverrides(t, "pipelines:\n  bad: [arxiv_search, ghost]\n"))
	require.NoError(t, err)
	assert.ErrorIs(t, ov.Apply(NewRegistry(Options{})), ErrUnknownStep)

	_, err = LoadOverrides(writeOverrides(t, "steps: [1, 2"))
	assert.Error(t, err)

	_, err = LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
