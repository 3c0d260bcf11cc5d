package parsers

import (
	"encoding/json"
	"fmt"
)

func ParseESLint(output []byte) ([]RawFinding, error) {
	if isBlank(output) {
		return nil, nil
	}

	var files []struct {
		FilePath string          `json:"filePath"`
		Messages []ESLintMessage `json:"messages"`
	}
	if err := json.Unmarshal(output, &files); err != nil {
		return nil, fmt.Errorf("failed to parse eslint output: %w", err)
	}

	var out []RawFinding
	for _, f := range files {
		for _, m := range f.Messages {
			m.FilePath = f.FilePath
			out = append(out, m)
		}
	}
	return out, nil
}
