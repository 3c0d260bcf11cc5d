package parsers

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

const npmManifest = "package-lock.json"

// ParseNpmAudit reads the report format of npm 7 and later.
func ParseNpmAudit(output []byte) ([]RawFinding, error) {
	if isBlank(output) {
		return nil, nil
	}

	var doc struct {
		Error *struct {
			Code    string `json:"code"`
			Summary string `json:"summary"`
		} `json:"error"`
		Vulnerabilities map[string]NpmAuditAdvisory `json:"vulnerabilities"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse npm audit output: %w", err)
	}
	if doc.Error != nil {
		return nil, fmt.Errorf("npm audit %s: %s", doc.Error.Code, strings.TrimSpace(doc.Error.Summary))
	}

	names := make([]string, 0, len(doc.Vulnerabilities))
	for name := range doc.Vulnerabilities {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]RawFinding, 0, len(names))
	for _, name := range names {
		adv := doc.Vulnerabilities[name]
		if adv.Package == "" {
			adv.Package = name
		}
		adv.Manifest = npmManifest
		out = append(out, adv)
	}
	return out, nil
}
