package model

import (
	"strconv"
	"time"
)

// DateLayout is the run date format shared by every step program.
const DateLayout = "2006-01-02"

// Zotero flag values as they travel through flags and environment.
const (
	ZoteroOn  = "T"
	ZoteroOff = "F"
)

// RunContext is built once per orchestration and threaded into every step
// through flags and environment variables.
type RunContext struct {
	RunDate string
	// SLLM selects the global LLM backend (1, 2 or 3). Zero means not supplied.
	SLLM int
	// UserID threads per-user config into steps that accept it. Zero means none.
	UserID int64
	Zotero bool
}

// ZoFlag renders the Zotero switch as T or F.
func (rc RunContext) ZoFlag() string {
	if rc.Zotero {
		return ZoteroOn
	}
	return ZoteroOff
}

// Params echoes the context for status displays.
func (rc RunContext) Params(pipeline string) RunParams {
	p := RunParams{Pipeline: pipeline, Date: rc.RunDate, Zo: rc.ZoFlag()}
	if rc.SLLM != 0 {
		s := rc.SLLM
		p.SLLM = &s
	}
	if rc.UserID != 0 {
		u := rc.UserID
		p.UserID = &u
	}
	return p
}

// Args renders the context as orchestrator CLI flags.
func (rc RunContext) Args() []string {
	args := []string{"--date", rc.RunDate, "--Zo", rc.ZoFlag()}
	if rc.SLLM != 0 {
		args = append(args, "--SLLM", strconv.Itoa(rc.SLLM))
	}
	if rc.UserID != 0 {
		args = append(args, "--user-id", strconv.FormatInt(rc.UserID, 10))
	}
	return args
}

// Today returns the local calendar date in DateLayout.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// RunParams is the JSON echo of the parameters a run was started with.
type RunParams struct {
	Pipeline string `json:"pipeline"`
	Date     string `json:"date"`
	SLLM     *int   `json:"sllm"`
	Zo       string `json:"zo"`
	UserID   *int64 `json:"user_id,omitempty"`
}

// RunSnapshot is a read-only copy of the controller's run state.
type RunSnapshot struct {
	RunID       string     `json:"run_id,omitempty"`
	Running     bool       `json:"running"`
	CurrentStep string     `json:"current_step"`
	Logs        []string   `json:"logs"`
	StartedAt   string     `json:"started_at,omitempty"`
	FinishedAt  string     `json:"finished_at,omitempty"`
	ExitCode    *int       `json:"exit_code"`
	Params      *RunParams `json:"params,omitempty"`
}

// RunRecord is a finished run as kept in the history table.
type RunRecord struct {
	ID         string      `json:"id"`
	Pipeline   string      `json:"pipeline"`
	RunDate    string      `json:"run_date"`
	Params     RunParams   `json:"params"`
	StartedAt  string      `json:"started_at"`
	FinishedAt string      `json:"finished_at"`
	ExitCode   int         `json:"exit_code"`
	FinalStep  string      `json:"final_step"`
	Failure    *RunFailure `json:"failure,omitempty"`
}
