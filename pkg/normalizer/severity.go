package normalizer

import (
	"math"
	"strconv"
	"strings"

	"scanhub/pkg/taxonomy"
	"scanhub/pkg/tools"
)

// severityTables maps each tool's own severity vocabulary, lower-cased, onto
// the canonical scale. Numeric scores are keyed by their decimal string.
var severityTables = map[tools.ToolName]map[string]taxonomy.Severity{
	tools.Semgrep: {
		"critical": taxonomy.SeverityCritical,
		"error":    taxonomy.SeverityHigh,
		"high":     taxonomy.SeverityHigh,
		"warning":  taxonomy.SeverityMedium,
		"medium":   taxonomy.SeverityMedium,
		"info":     taxonomy.SeverityLow,
		"low":      taxonomy.SeverityLow,
	},
	tools.Cppcheck: {
		"error":       taxonomy.SeverityHigh,
		"warning":     taxonomy.SeverityMedium,
		"performance": taxonomy.SeverityLow,
		"portability": taxonomy.SeverityLow,
		"style":       taxonomy.SeverityLow,
		"information": taxonomy.SeverityLow,
	},
	tools.ClangTidy: {
		"error":   taxonomy.SeverityHigh,
		"warning": taxonomy.SeverityMedium,
		"note":    taxonomy.SeverityLow,
	},
	tools.Flawfinder: {
		"5": taxonomy.SeverityCritical,
		"4": taxonomy.SeverityHigh,
		"3": taxonomy.SeverityMedium,
		"2": taxonomy.SeverityLow,
		"1": taxonomy.SeverityLow,
		"0": taxonomy.SeverityLow,
	},
	tools.Bandit: {
		"high":   taxonomy.SeverityHigh,
		"medium": taxonomy.SeverityMedium,
		"low":    taxonomy.SeverityLow,
	},
	tools.ESLint: {
		"2": taxonomy.SeverityMedium,
		"1": taxonomy.SeverityLow,
	},
	tools.NpmAudit: {
		"critical": taxonomy.SeverityCritical,
		"high":     taxonomy.SeverityHigh,
		"moderate": taxonomy.SeverityMedium,
		"low":      taxonomy.SeverityLow,
		"info":     taxonomy.SeverityLow,
	},
	tools.Trivy: {
		"critical": taxonomy.SeverityCritical,
		"high":     taxonomy.SeverityHigh,
		"medium":   taxonomy.SeverityMedium,
		"low":      taxonomy.SeverityLow,
	},
}

// lookupSeverity resolves a raw severity through the tool's table, then the
// canonical names themselves, then as a CVSS style score. Misses fall back to
// the default severity.
func lookupSeverity(tool tools.ToolName, raw string) (taxonomy.Severity, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if sev, ok := severityTables[tool][key]; ok {
		return sev, true
	}
	if sev, err := taxonomy.ParseSeverity(key); err == nil {
		return sev, true
	}
	if score, err := strconv.ParseFloat(key, 64); err == nil {
		return scoreSeverity(score)
	}
	return taxonomy.DefaultSeverity, false
}

// scoreSeverity buckets a 0-10 score the way CVSS v3 rates it.
func scoreSeverity(score float64) (taxonomy.Severity, bool) {
	switch {
	case math.IsNaN(score) || score < 0 || score > 10:
		return taxonomy.DefaultSeverity, false
	case score >= 9:
		return taxonomy.SeverityCritical, true
	case score >= 7:
		return taxonomy.SeverityHigh, true
	case score >= 4:
		return taxonomy.SeverityMedium, true
	default:
		return taxonomy.SeverityLow, true
	}
}
