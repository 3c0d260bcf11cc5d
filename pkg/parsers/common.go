package parsers

import (
	"bytes"
	"fmt"

	"scanhub/pkg/tools"
)

// Parser turns a tool's captured output into raw findings.
type Parser func(output []byte) ([]RawFinding, error)

var nativeParsers = map[tools.ToolName]Parser{
	tools.Semgrep:    ParseSemgrep,
	tools.Cppcheck:   ParseCppcheck,
	tools.ClangTidy:  ParseClangTidy,
	tools.Flawfinder: ParseFlawfinder,
	tools.Bandit:     ParseBandit,
	tools.ESLint:     ParseESLint,
	tools.NpmAudit:   ParseNpmAudit,
	tools.Trivy:      ParseTrivy,
}

// ForTool returns the parser for the tool's configured output format.
func ForTool(name tools.ToolName, format string) (Parser, error) {
	if format == tools.FormatGeneric {
		return ParseGeneric, nil
	}
	p, ok := nativeParsers[name]
	if !ok {
		return nil, fmt.Errorf("no parser for tool %s", name)
	}
	return p, nil
}

func isBlank(output []byte) bool {
	return len(bytes.TrimSpace(output)) == 0
}
