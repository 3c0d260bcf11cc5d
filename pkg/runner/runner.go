package runner

import (
	"context"
	"errors"
	"fmt"
)

// ErrBinaryNotFound is returned when the command is not installed.
var ErrBinaryNotFound = errors.New("binary not found")

// Command is one process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// Result is the captured output of a finished process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// ExitError reports a process that ran but exited non-zero. The captured
// output is still available on the accompanying Result.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d: %s", e.Code, e.Stderr)
}

type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}
