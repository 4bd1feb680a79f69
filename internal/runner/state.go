package runner

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

// DefaultLogLines is the number of log lines kept when no limit is given.
const DefaultLogLines = 500

// Labels shown as current_step outside of a running step.
const (
	LabelStarting = "starting..."
	LabelDone     = "done"
)

// StateStore owns the single run-state record. Every read and write goes
// through one mutex, so readers never see a half-updated record.
type StateStore struct {
	mu sync.Mutex

	runID       string
	running     bool
	currentStep string
	lastStep    string
	logs        ring
	startedAt   time.Time
	finishedAt  time.Time
	exitCode    *int
	params      *model.RunParams
	cancel      context.CancelFunc

	now func() time.Time
}

// NewStateStore creates a store keeping at most limit log lines.
func NewStateStore(limit int) *StateStore {
	if limit <= 0 {
		limit = DefaultLogLines
	}
	return &StateStore{logs: newRing(limit), now: time.Now}
}

// begin resets the record for a new run. It returns false, changing
// nothing, when a run is already in progress.
func (s *StateStore) begin(runID string, params model.RunParams, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.runID = runID
	s.running = true
	s.currentStep = LabelStarting
	s.lastStep = ""
	s.logs.reset()
	s.startedAt = s.now()
	s.finishedAt = time.Time{}
	s.exitCode = nil
	s.params = &params
	s.cancel = cancel
	return true
}

// AppendLog adds one line with an "[HH:MM:SS] " prefix, evicting the oldest
// line when the buffer is full. RUN/SKIP banner lines also update the
// current_step label.
func (s *StateStore) AppendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs.push("[" + s.now().Format("15:04:05") + "] " + line)
	if !s.running {
		return
	}
	if label, ok := labelFromLog(line); ok {
		s.currentStep = label
	}
}

// setStep records an explicit progress event from the orchestrator.
func (s *StateStore) setStep(label, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.currentStep = label
	if step != "" {
		s.lastStep = step
	}
}

// requestCancel returns the live run's cancel func, or nil when idle.
func (s *StateStore) requestCancel() context.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	return s.cancel
}

// finish marks the run complete and returns the final snapshot together
// with the last step that started.
func (s *StateStore) finish(code int) (model.RunSnapshot, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.finishedAt = s.now()
	s.exitCode = &code
	s.currentStep = FinalLabel(code)
	s.cancel = nil
	return s.snapshotLocked(), s.lastStep
}

// Running reports whether a run is in progress.
func (s *StateStore) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Snapshot returns a copy of the record. The log slice is freshly allocated.
func (s *StateStore) Snapshot() model.RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *StateStore) snapshotLocked() model.RunSnapshot {
	snap := model.RunSnapshot{
		RunID:       s.runID,
		Running:     s.running,
		CurrentStep: s.currentStep,
		Logs:        s.logs.lines(),
		StartedAt:   formatTime(s.startedAt),
		FinishedAt:  formatTime(s.finishedAt),
	}
	if s.exitCode != nil {
		code := *s.exitCode
		snap.ExitCode = &code
	}
	if s.params != nil {
		p := *s.params
		snap.Params = &p
	}
	return snap
}

// FinalLabel is the current_step shown after a run ends.
func FinalLabel(code int) string {
	if code == 0 {
		return LabelDone
	}
	return "exited abnormally (code=" + strconv.Itoa(code) + ")"
}

// labelFromLog derives a display label from orchestrator banner lines.
func labelFromLog(line string) (string, bool) {
	switch {
	case strings.HasPrefix(line, "RUN step:"):
		return strings.TrimSpace(strings.TrimPrefix(line, "RUN step:")), true
	case strings.HasPrefix(line, "SKIP step:"):
		return "skipped: " + strings.TrimSpace(strings.TrimPrefix(line, "SKIP step:")), true
	}
	return "", false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ring is a fixed-capacity FIFO of log lines.
type ring struct {
	buf   []string
	start int
	n     int
}

func newRing(capacity int) ring {
	return ring{buf: make([]string, capacity)}
}

func (r *ring) push(line string) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = line
		r.n++
		return
	}
	r.buf[r.start] = line
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) lines() []string {
	out := make([]string, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) reset() {
	clear(r.buf)
	r.start, r.n = 0, 0
}
