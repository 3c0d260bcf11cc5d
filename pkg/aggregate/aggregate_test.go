package aggregate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"scanhub/internal/models"
	"scanhub/pkg/taxonomy"
	"scanhub/pkg/tools"
)

func vuln(tool tools.ToolName, sev taxonomy.Severity) models.Vulnerability {
	return models.Vulnerability{Tool: tool, Severity: sev}
}

func TestCompute(t *testing.T) {
	vulns := []models.Vulnerability{
		vuln(tools.Cppcheck, taxonomy.SeverityCritical),
		vuln(tools.Cppcheck, taxonomy.SeverityHigh),
		vuln(tools.ClangTidy, taxonomy.SeverityMedium),
		vuln(tools.ClangTidy, taxonomy.SeverityLow),
		vuln(tools.ClangTidy, taxonomy.SeverityLow),
	}

	s := Compute(vulns)
	assert.Equal(t, models.IssuesCounts{Critical: 1, High: 1, Medium: 1, Low: 2, Total: 5}, s.IssuesCounts)
	assert.Equal(t, map[string]int{"cppcheck": 2, "clangTidy": 3}, s.ToolCounts)
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(nil)
	assert.Equal(t, models.IssuesCounts{}, s.IssuesCounts)
	assert.NotNil(t, s.ToolCounts)
	assert.Empty(t, s.ToolCounts)
}

func TestComputeTotalInvariantAndOrderIndependence(t *testing.T) {
	severities := taxonomy.AllSeverities()
	names := []tools.ToolName{tools.Semgrep, tools.Bandit, tools.Trivy}

	r := rand.New(rand.NewSource(42))
	var vulns []models.Vulnerability
	for i := 0; i < 500; i++ {
		vulns = append(vulns, vuln(names[r.Intn(len(names))], severities[r.Intn(len(severities))]))
	}

	first := Compute(vulns)
	c := first.IssuesCounts
	assert.Equal(t, c.Total, c.Critical+c.High+c.Medium+c.Low)
	assert.Equal(t, len(vulns), c.Total)

	toolTotal := 0
	for _, n := range first.ToolCounts {
		toolTotal += n
	}
	assert.Equal(t, c.Total, toolTotal)

	r.Shuffle(len(vulns), func(i, j int) { vulns[i], vulns[j] = vulns[j], vulns[i] })
	assert.Equal(t, first, Compute(vulns))
}

func TestApply(t *testing.T) {
	scan := &models.Scan{}
	Compute([]models.Vulnerability{vuln(tools.ESLint, taxonomy.SeverityHigh)}).Apply(scan)

	assert.Equal(t, 1, scan.IssuesCounts.High)
	assert.Equal(t, 1, scan.IssuesCounts.Total)
	assert.Equal(t, 1, scan.ToolCounts["eslint"])
}
