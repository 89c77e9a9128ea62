package command

import "context"

// Command describes one external process invocation.
type Command struct {
	Path string
	Args []string
	// Env replaces the process environment when non-nil.
	Env []string
}

// Result carries the captured output of a finished process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner abstracts process execution so callers can inject fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}
