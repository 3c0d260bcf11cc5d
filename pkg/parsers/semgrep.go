package parsers

import (
	"encoding/json"
	"fmt"
)

type semgrepJSON struct {
	Results []SemgrepResult `json:"results"`
	Errors  []struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	} `json:"errors"`
}

func ParseSemgrep(output []byte) ([]RawFinding, error) {
	if isBlank(output) {
		return nil, nil
	}

	var doc semgrepJSON
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse semgrep output: %w", err)
	}

	// A run that only produced errors never looked at the code.
	if len(doc.Results) == 0 && len(doc.Errors) > 0 && doc.Errors[0].Level == "error" {
		return nil, fmt.Errorf("semgrep reported: %s", doc.Errors[0].Message)
	}

	out := make([]RawFinding, 0, len(doc.Results))
	for _, r := range doc.Results {
		out = append(out, r)
	}
	return out, nil
}
