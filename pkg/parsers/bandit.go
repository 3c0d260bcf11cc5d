package parsers

import (
	"encoding/json"
	"fmt"
)

func ParseBandit(output []byte) ([]RawFinding, error) {
	if isBlank(output) {
		return nil, nil
	}

	var doc struct {
		Results []BanditIssue `json:"results"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse bandit output: %w", err)
	}

	out := make([]RawFinding, 0, len(doc.Results))
	for _, r := range doc.Results {
		out = append(out, r)
	}
	return out, nil
}
