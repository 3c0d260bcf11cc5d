package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseFlawfinder reads the --csv report. Columns are located by header name
// since their order changed between releases.
func ParseFlawfinder(output []byte) ([]RawFinding, error) {
	if isBlank(output) {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(output))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read flawfinder CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	if _, ok := col["File"]; !ok {
		return nil, fmt.Errorf("flawfinder CSV has no File column")
	}

	get := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}

	var out []RawFinding
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse flawfinder CSV: %w", err)
		}
		out = append(out, FlawfinderHit{
			File:       get(rec, "File"),
			Line:       atoi(get(rec, "Line")),
			Column:     atoi(get(rec, "Column")),
			Level:      atoi(get(rec, "Level")),
			Category:   get(rec, "Category"),
			Name:       get(rec, "Name"),
			Warning:    get(rec, "Warning"),
			Suggestion: get(rec, "Suggestion"),
			CWEs:       get(rec, "CWEs"),
			HelpURI:    get(rec, "HelpUri"),
		})
	}
	return out, nil
}
