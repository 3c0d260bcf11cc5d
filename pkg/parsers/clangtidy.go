package parsers

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
)

var clangTidyLine = regexp.MustCompile(`^(.+?):(\d+):(\d+): (warning|error|note): (.*?)(?: \[([^\]]+)\])?$`)

// ParseClangTidy reads clang-tidy's diagnostic lines. Notes and source
// excerpts are skipped; only warnings and errors are findings.
func ParseClangTidy(output []byte) ([]RawFinding, error) {
	var out []RawFinding

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := clangTidyLine.FindStringSubmatch(scanner.Text())
		if m == nil || m[4] == "note" {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		out = append(out, ClangTidyDiagnostic{
			File:    m[1],
			Line:    line,
			Column:  col,
			Level:   m[4],
			Message: m[5],
			Check:   m[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
