// Package aggregate derives a scan's cached counts from its vulnerabilities.
package aggregate

import (
	"scanhub/internal/models"
	"scanhub/pkg/taxonomy"
)

type Summary struct {
	IssuesCounts models.IssuesCounts
	ToolCounts   map[string]int
}

// Compute counts vulnerabilities by severity and by tool. It is pure and does
// not depend on input order. Severities outside the taxonomy count as low,
// matching what the normalizer would have stored.
func Compute(vulns []models.Vulnerability) Summary {
	s := Summary{ToolCounts: make(map[string]int)}
	for _, v := range vulns {
		switch v.Severity {
		case taxonomy.SeverityCritical:
			s.IssuesCounts.Critical++
		case taxonomy.SeverityHigh:
			s.IssuesCounts.High++
		case taxonomy.SeverityMedium:
			s.IssuesCounts.Medium++
		default:
			s.IssuesCounts.Low++
		}
		s.ToolCounts[string(v.Tool)]++
	}
	s.IssuesCounts.Total = len(vulns)
	return s
}

// Apply writes the summary onto scan.
func (s Summary) Apply(scan *models.Scan) {
	scan.IssuesCounts = s.IssuesCounts
	scan.ToolCounts = s.ToolCounts
}
