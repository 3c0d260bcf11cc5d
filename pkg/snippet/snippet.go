// Package snippet reads the source lines around a finding.
package snippet

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"

	"scanhub/pkg/logger"
)

const (
	DefaultWindow = 3
	maxLineBytes  = 1 << 20
)

type Line struct {
	LineNumber    int    `json:"lineNumber"`
	Content       string `json:"content"`
	IsHighlighted bool   `json:"isHighlighted"`
}

// Snippet is a window of source lines. Available is false when the file is
// gone or lies outside the scan workspace; that is a normal state.
type Snippet struct {
	Available bool   `json:"available"`
	Lines     []Line `json:"lines"`
}

// Unavailable is the snippet of a file that cannot be read.
func Unavailable() Snippet {
	return Snippet{Available: false, Lines: []Line{}}
}

type Extractor struct {
	window int
	log    *logger.Logger
}

func NewExtractor(window int, log *logger.Logger) *Extractor {
	if window < 0 {
		window = DefaultWindow
	}
	return &Extractor{window: window, log: log}
}

func (e *Extractor) Window() int {
	return e.window
}

// Extract returns the lines around line in file, resolved inside root. The
// window is clipped to the file; it never errors.
func (e *Extractor) Extract(root, file string, line int) Snippet {
	return e.ExtractWindow(root, file, line, e.window)
}

func (e *Extractor) ExtractWindow(root, file string, line, window int) Snippet {
	if root == "" || file == "" {
		return Unavailable()
	}
	if window < 0 {
		window = e.window
	}

	lines, err := readWindow(root, file, line, window)
	if err != nil {
		e.log.WithFields(logger.Fields{
			"root": root,
			"file": file,
			"line": line,
		}).WithError(err).Debug("Snippet unavailable")
		return Unavailable()
	}
	return Snippet{Available: true, Lines: lines}
}

func readWindow(root, file string, line, window int) ([]Line, error) {
	path, err := securejoin.SecureJoin(root, file)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", file, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("not a regular file")
	}

	// Without a usable line number show the top of the file.
	highlight := line >= 1
	if !highlight {
		line = 1
	}
	start := max(1, line-window)
	end := line + window

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	// Keep a ring of the last lines so a line past the end of the file still
	// yields the file's tail.
	var (
		out  []Line
		tail []Line
		n    int
	)
	for scanner.Scan() {
		n++
		l := Line{LineNumber: n, Content: scanner.Text(), IsHighlighted: highlight && n == line}
		if n >= start && n <= end {
			out = append(out, l)
		}
		if n > end {
			break
		}
		tail = append(tail, l)
		if len(tail) > window+1 {
			tail = tail[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(out) == 0 {
		// The reported line is beyond the end of the file.
		out = tail
	}
	if out == nil {
		out = []Line{}
	}
	return out, nil
}
