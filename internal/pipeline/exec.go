package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Command is one step invocation.
type Command struct {
	Step string
	Args []string
	Env  []string
	Dir  string
	// Output receives the combined stdout and stderr stream.
	Output io.Writer
}

// Runner executes a step command and blocks until it exits. A non-nil error
// means the process could not be started or waited on; otherwise the exit
// code is returned.
type Runner interface {
	Run(ctx context.Context, cmd Command) (int, error)
}

// ExecRunner runs steps as child processes. Cancelling ctx sends SIGTERM
// (os.Interrupt on platforms without it) and kills after Grace.
type ExecRunner struct {
	Grace time.Duration
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, c Command) (int, error) {
	if len(c.Args) == 0 {
		return -1, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	out := c.Output
	if out == nil {
		out = io.Discard
	}
	// One writer for both streams keeps lines in emission order.
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	cmd.WaitDelay = r.Grace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 10 * time.Second
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start %s: %w", c.Step, err)
	}
	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		return cmd.ProcessState.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait %s: %w", c.Step, err)
}

func terminate(p *os.Process) error {
	if err := p.Signal(sigterm); err != nil {
		return p.Kill()
	}
	return nil
}
