package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"scanhub/pkg/logger"
)

const maxStderrInError = 2048

// SimpleRunner executes analyzer binaries directly, without a shell.
type SimpleRunner struct {
	logger *logger.Logger
}

func NewSimpleRunner(log *logger.Logger) *SimpleRunner {
	return &SimpleRunner{logger: log}
}

// Run executes cmd and captures stdout and stderr separately. A non-zero exit
// returns the Result together with an *ExitError.
func (r *SimpleRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	for i, arg := range cmd.Args {
		if err := validateArgument(arg); err != nil {
			return Result{}, fmt.Errorf("invalid argument at index %d (%q): %w", i, arg, err)
		}
	}

	name, args := resolveInterpreter(cmd.Name, cmd.Args)
	if err := validateCommand(name); err != nil {
		return Result{}, err
	}

	r.logger.WithFields(logger.Fields{
		"command": name,
		"args":    args,
		"dir":     cmd.Dir,
	}).Debug("Executing command")

	c := exec.CommandContext(ctx, name, args...)
	c.Dir = cmd.Dir

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderrInError {
			msg = msg[:maxStderrInError] + "..."
		}
		return res, &ExitError{Code: res.ExitCode, Stderr: msg}
	}

	return res, fmt.Errorf("execution failed: %w", err)
}

func validateCommand(command string) error {
	if command == "" {
		return fmt.Errorf("command is empty")
	}

	if strings.ContainsRune(command, os.PathSeparator) {
		fi, err := os.Lstat(command)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrBinaryNotFound, command)
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("command is a symlink: %s", command)
		}
		return nil
	}

	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("%w: %s", ErrBinaryNotFound, command)
	}
	return nil
}

// validateArgument rejects arguments that could not have come from a tool
// config or a workspace path.
func validateArgument(arg string) error {
	if strings.ContainsAny(arg, "\x00\n\r") {
		return fmt.Errorf("argument contains control characters")
	}
	for _, segment := range strings.FieldsFunc(arg, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." && !strings.Contains(arg, "://") {
			return fmt.Errorf("path traversal detected in argument")
		}
	}
	return nil
}

// resolveInterpreter lets a tool config point at a wrapper script.
func resolveInterpreter(command string, args []string) (string, []string) {
	switch filepath.Ext(command) {
	case ".py":
		return "python3", append([]string{command}, args...)
	case ".js":
		return "node", append([]string{command}, args...)
	case ".rb":
		return "ruby", append([]string{command}, args...)
	case ".sh":
		if runtime.GOOS == "windows" {
			return "bash", append([]string{command}, args...)
		}
		return "sh", append([]string{command}, args...)
	case ".ps1":
		return "powershell", append([]string{"-File", command}, args...)
	}
	return command, args
}
