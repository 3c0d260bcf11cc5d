package adapters

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
	"scanhub/pkg/parsers"
	"scanhub/pkg/runner"
	"scanhub/pkg/tools"
)

// CommandAdapter runs a configured analyzer binary and decodes its output.
type CommandAdapter struct {
	name   tools.ToolName
	config tools.ToolConfig
	runner runner.CommandRunner
	parse  parsers.Parser
	log    *logger.Logger
}

func NewCommandAdapter(name tools.ToolName, config tools.ToolConfig, r runner.CommandRunner, log *logger.Logger) (*CommandAdapter, error) {
	parse, err := parsers.ForTool(name, config.OutputFormat())
	if err != nil {
		return nil, err
	}
	return &CommandAdapter{
		name:   name,
		config: config,
		runner: r,
		parse:  parse,
		log:    log,
	}, nil
}

func (a *CommandAdapter) Tool() tools.ToolName {
	return a.name
}

// Timeout is the per-tool override, zero when the engine default applies.
func (a *CommandAdapter) Timeout() time.Duration {
	return a.config.Timeout
}

func (a *CommandAdapter) Run(ctx context.Context, tree SourceTree) (parsers.RawFindings, error) {
	empty := parsers.RawFindings{Tool: a.name, Root: tree.Root}

	args, err := a.config.BuildArgs(&tools.Options{Target: tree.Root, WorkDir: tree.Root})
	if err != nil {
		return empty, a.fail(fmt.Errorf("%w: failed to build arguments: %v", scanerrors.ErrToolExecution, err))
	}

	if len(a.config.FileGlobs) > 0 {
		matched := matchFiles(tree.Files, a.config.FileGlobs)
		if len(matched) == 0 {
			a.log.WithTool(string(a.name)).Debug("No files match the tool's globs")
			return empty, nil
		}
		args = append(args, matched...)
	}

	a.log.WithTool(string(a.name)).Infof("Executing command: %s %s", a.config.Command, strings.Join(args, " "))

	res, err := a.runner.Run(ctx, runner.Command{Name: a.config.Command, Args: args, Dir: tree.Root})
	if err != nil {
		var exitErr *runner.ExitError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return empty, a.fail(scanerrors.ErrToolTimeout)
		case errors.Is(err, context.Canceled):
			return empty, a.fail(scanerrors.ErrToolCancelled)
		case errors.As(err, &exitErr) && a.config.IsSuccessExit(exitErr.Code):
			// findings present
		default:
			return empty, a.fail(fmt.Errorf("%w: %v", scanerrors.ErrToolExecution, err))
		}
	}

	output := res.Stdout
	if a.config.OutputStream() == tools.StreamStderr {
		output = res.Stderr
	}

	items, err := a.parse(output)
	if err != nil {
		return empty, a.fail(fmt.Errorf("%w: unparseable output: %v", scanerrors.ErrToolExecution, err))
	}

	raw := parsers.NewRawFindings(a.name, items)
	raw.Root = tree.Root
	return raw, nil
}

func (a *CommandAdapter) fail(err error) error {
	return scanerrors.NewToolError(string(a.name), err)
}

// matchFiles keeps the files whose base name matches one of globs.
func matchFiles(files, globs []string) []string {
	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		for _, g := range globs {
			if ok, _ := filepath.Match(g, base); ok {
				out = append(out, filepath.ToSlash(f))
				break
			}
		}
	}
	return out
}
