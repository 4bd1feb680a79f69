package engine

import (
	"context"
	"strings"
	"time"
)

// ProbePrompt is the one-line prompt used to check a connection.
const ProbePrompt = "Reply with the single word OK."

// ProbeResult reports a connectivity check.
type ProbeResult struct {
	OK        bool   `json:"ok"`
	Reply     string `json:"reply,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Probe sends ProbePrompt through c. Failures are reported in the result,
// not as an error, so callers can show them next to the configuration.
func Probe(ctx context.Context, c Completer) ProbeResult {
	start := time.Now()
	reply, err := c.Complete(ctx, ProbePrompt)
	res := ProbeResult{LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	res.Reply = strings.TrimSpace(reply)
	return res
}
