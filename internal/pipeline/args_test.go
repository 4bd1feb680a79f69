package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

func envFunc(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

var fixedNow = time.Date(2026, 2, 7, 9, 30, 0, 0, time.Local)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		env      map[string]string
		want     model.RunContext
		wantRest []string
	}{
		{
			name:     "defaults",
			want:     model.RunContext{RunDate: "2026-02-07"},
			wantRest: []string{},
		},
		{
			name:     "flags stripped, leftovers kept",
			args:     []string{"--max", "50", "--date", "2026-01-02", "--SLLM", "2", "--user-id", "12", "--Zo", "t", "--verbose"},
			want:     model.RunContext{RunDate: "2026-01-02", SLLM: 2, UserID: 12, Zotero: true},
			wantRest: []string{"--max", "50", "--verbose"},
		},
		{
			name:     "equals form",
			args:     []string{"--date=2026-01-03", "--SLLM=3", "--Zo=T"},
			want:     model.RunContext{RunDate: "2026-01-03", SLLM: 3, Zotero: true},
			wantRest: []string{},
		},
		{
			name:     "env fallbacks",
			env:      map[string]string{"RUN_DATE": "2026-01-04", "SLLM": "2", "PIPELINE_USER_ID": "8", "ZO": "T"},
			want:     model.RunContext{RunDate: "2026-01-04", SLLM: 2, UserID: 8, Zotero: true},
			wantRest: []string{},
		},
		{
			name:     "flags beat env",
			args:     []string{"--date", "2026-01-05", "--Zo", "F"},
			env:      map[string]string{"RUN_DATE": "2026-01-04", "ZO": "T"},
			want:     model.RunContext{RunDate: "2026-01-05"},
			wantRest: []string{},
		},
		{
			name:     "invalid SLLM is stripped and ignored",
			args:     []string{"--SLLM", "9", "x"},
			env:      map[string]string{"SLLM": "1"},
			want:     model.RunContext{RunDate: "2026-02-07", SLLM: 1},
			wantRest: []string{"x"},
		},
		{
			name:     "invalid env SLLM ignored",
			env:      map[string]string{"SLLM": "abc"},
			want:     model.RunContext{RunDate: "2026-02-07"},
			wantRest: []string{},
		},
		{
			name:     "invalid Zo keeps env value",
			args:     []string{"--Zo", "yes"},
			env:      map[string]string{"ZO": "t"},
			want:     model.RunContext{RunDate: "2026-02-07", Zotero: true},
			wantRest: []string{},
		},
		{
			name:     "garbage ZO env normalises to off",
			env:      map[string]string{"ZO": "maybe"},
			want:     model.RunContext{RunDate: "2026-02-07"},
			wantRest: []string{},
		},
		{
			name:     "trailing flag without value",
			args:     []string{"a", "--SLLM"},
			want:     model.RunContext{RunDate: "2026-02-07"},
			wantRest: []string{"a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, rest, err := ParseArgs(tt.args, envFunc(tt.env), fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rc)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestParseArgs_Errors(t *testing.T) {
	_, _, err := ParseArgs([]string{"--date", "07/02/2026"}, envFunc(nil), fixedNow)
	assert.Error(t, err)

	_, _, err = ParseArgs([]string{"--user-id", "bob"}, envFunc(nil), fixedNow)
	assert.Error(t, err)

	_, _, err = ParseArgs(nil, envFunc(map[string]string{"PIPELINE_USER_ID": "-1"}), fixedNow)
	assert.Error(t, err)
}

func TestStepEnv(t *testing.T) {
	base := []string{"PATH=/usr/bin", "RUN_DATE=stale"}

	env := StepEnv(base, model.RunContext{RunDate: "2026-02-07"})
	assert.Equal(t, []string{"PATH=/usr/bin", "RUN_DATE=stale", "RUN_DATE=2026-02-07", "PYTHONIOENCODING=utf-8", "ZO=F"}, env)

	env = StepEnv(nil, model.RunContext{RunDate: "2026-02-07", SLLM: 2, UserID: 4, Zotero: true})
	assert.Contains(t, env, "SLLM=2")
	assert.Contains(t, env, "PIPELINE_USER_ID=4")
	assert.Contains(t, env, "ZO=T")
}

func TestNormalizeZo(t *testing.T) {
	assert.Equal(t, "T", NormalizeZo(" t "))
	assert.Equal(t, "F", NormalizeZo("F"))
	assert.Equal(t, "F", NormalizeZo(""))
	assert.Equal(t, "F", NormalizeZo("true"))
}
