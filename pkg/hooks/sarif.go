package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"scanhub/internal/models"
	"scanhub/pkg/taxonomy"
	"scanhub/pkg/tools"
)

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://json.schemastore.org/sarif-2.1.0.json"

	SarifFileName = "results.sarif"
)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name  string      `json:"name"`
	Rules []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID     string            `json:"ruleId,omitempty"`
	Level      string            `json:"level"`
	Message    sarifMessage      `json:"message"`
	Locations  []sarifLocation   `json:"locations"`
	Properties map[string]string `json:"properties,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
}

// SarifExportHook writes the findings of a completed scan as a SARIF log
// into the scan workspace, one run per tool.
type SarifExportHook struct {
	Registry *tools.Registry
}

func (s *SarifExportHook) Name() string {
	return "sarif_export"
}

func (s *SarifExportHook) Execute(_ context.Context, hc HookContext) error {
	if hc.Scan.Status != models.ScanStatusCompleted || hc.OutputDir == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.Build(hc.Vulnerabilities), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sarif: %w", err)
	}

	path := filepath.Join(hc.OutputDir, SarifFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Build groups vulnerabilities into runs in order of first appearance.
func (s *SarifExportHook) Build(vulns []models.Vulnerability) sarifLog {
	log := sarifLog{Version: sarifVersion, Schema: sarifSchema, Runs: []sarifRun{}}

	runIndex := make(map[tools.ToolName]int)
	seenRules := make(map[tools.ToolName]map[string]bool)

	for _, v := range vulns {
		i, ok := runIndex[v.Tool]
		if !ok {
			i = len(log.Runs)
			runIndex[v.Tool] = i
			seenRules[v.Tool] = make(map[string]bool)
			log.Runs = append(log.Runs, sarifRun{
				Tool:    sarifTool{Driver: sarifDriver{Name: s.displayName(v.Tool)}},
				Results: []sarifResult{},
			})
		}
		run := &log.Runs[i]

		if v.RuleID != "" && !seenRules[v.Tool][v.RuleID] {
			seenRules[v.Tool][v.RuleID] = true
			run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, sarifRule{
				ID:               v.RuleID,
				ShortDescription: sarifMessage{Text: v.Title},
			})
		}

		result := sarifResult{
			RuleID:  v.RuleID,
			Level:   sarifLevel(v.Severity),
			Message: sarifMessage{Text: v.Title},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: filepath.ToSlash(v.Location.File)},
				},
			}},
		}
		if v.Location.Line > 0 {
			result.Locations[0].PhysicalLocation.Region = &sarifRegion{
				StartLine:   v.Location.Line,
				StartColumn: v.Location.Column,
			}
		}
		if v.CWE != "" {
			result.Properties = map[string]string{"cwe": v.CWE}
		}
		run.Results = append(run.Results, result)
	}

	return log
}

func (s *SarifExportHook) displayName(name tools.ToolName) string {
	if s.Registry != nil {
		if d, ok := s.Registry.Descriptor(name); ok {
			return d.DisplayName
		}
	}
	return string(name)
}

func sarifLevel(sev taxonomy.Severity) string {
	switch sev {
	case taxonomy.SeverityCritical, taxonomy.SeverityHigh:
		return "error"
	case taxonomy.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
