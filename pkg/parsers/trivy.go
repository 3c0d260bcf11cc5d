package parsers

import (
	"encoding/json"
	"fmt"
)

func ParseTrivy(output []byte) ([]RawFinding, error) {
	if isBlank(output) {
		return nil, nil
	}

	var doc struct {
		Results []struct {
			Target            string                  `json:"Target"`
			Vulnerabilities   []TrivyVulnerability    `json:"Vulnerabilities"`
			Misconfigurations []TrivyMisconfiguration `json:"Misconfigurations"`
		} `json:"Results"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse trivy output: %w", err)
	}

	var out []RawFinding
	for _, r := range doc.Results {
		for _, v := range r.Vulnerabilities {
			v.Target = r.Target
			out = append(out, v)
		}
		for _, m := range r.Misconfigurations {
			m.Target = r.Target
			out = append(out, m)
		}
	}
	return out, nil
}
