// Package taxonomy holds the closed severity scale and triage states shared by
// every normalized vulnerability.
package taxonomy

import (
	"fmt"
	"strings"
)

// Severity is the closed, ordered severity scale.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// DefaultSeverity is assigned when a tool reports a severity with no mapping.
const DefaultSeverity = SeverityLow

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
}

func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank orders severities; invalid values rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) String() string {
	return string(s)
}

// ParseSeverity accepts the canonical names case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	severity := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !severity.IsValid() {
		return "", fmt.Errorf("invalid severity: %q", s)
	}
	return severity, nil
}

// AllSeverities returns the scale from critical to low.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// TriageStatus is the user-driven state of a vulnerability.
type TriageStatus string

const (
	TriageOpen       TriageStatus = "open"
	TriageInProgress TriageStatus = "in_progress"
	TriageFixed      TriageStatus = "fixed"
	TriageIgnored    TriageStatus = "ignored"
)

func (s TriageStatus) IsValid() bool {
	switch s {
	case TriageOpen, TriageInProgress, TriageFixed, TriageIgnored:
		return true
	}
	return false
}
