package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const waitDelay = 2 * time.Second

// ExecRunner runs commands with os/exec, killing them when ctx ends.
type ExecRunner struct{}

// NewExecRunner returns the default process runner.
func NewExecRunner() ExecRunner { return ExecRunner{} }

// Run executes cmd and returns its captured output. A non-zero exit is an error
// with Result.ExitCode set; a cancelled or expired ctx is reported as ctx.Err().
func (ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if c.Env != nil {
		cmd.Env = c.Env
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: -1}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", c.Path, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, fmt.Errorf("%s exited with code %d", c.Path, res.ExitCode)
		}
		return res, fmt.Errorf("run %s: %w", c.Path, err)
	}
	return res, nil
}

// Snippet trims b to at most n bytes for logging.
func Snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(bytes.TrimSpace(b))
}
