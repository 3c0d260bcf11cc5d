package normalizer

import (
	"fmt"
	"strconv"
	"strings"

	"scanhub/internal/models"
	"scanhub/pkg/parsers"
	"scanhub/pkg/tools"
)

// draft is a mapped finding before severity resolution.
type draft struct {
	vuln     models.Vulnerability
	severity string
}

type mapFunc func(parsers.RawFinding) (draft, error)

var mappers = map[tools.ToolName]mapFunc{
	tools.Semgrep:    mapSemgrep,
	tools.Cppcheck:   mapCppcheck,
	tools.ClangTidy:  mapClangTidy,
	tools.Flawfinder: mapFlawfinder,
	tools.Bandit:     mapBandit,
	tools.ESLint:     mapESLint,
	tools.NpmAudit:   mapNpmAudit,
	tools.Trivy:      mapTrivy,
}

func unexpected(item parsers.RawFinding) error {
	return fmt.Errorf("unexpected raw finding %T", item)
}

func mapSemgrep(item parsers.RawFinding) (draft, error) {
	r, ok := item.(parsers.SemgrepResult)
	if !ok {
		return draft{}, unexpected(item)
	}

	ruleType := r.Extra.Metadata.Category
	if ruleType == "" {
		ruleType = lastSegment(r.CheckID, ".")
	}

	return draft{
		severity: r.Extra.Severity,
		vuln: models.Vulnerability{
			Type:        ruleType,
			Location:    models.Location{File: r.Path, Line: r.Start.Line, Column: r.Start.Col},
			Title:       r.CheckID,
			Description: textOf(r.Extra.Message).TakeOr(""),
			Remediation: r.Extra.Fix,
			References:  r.Extra.Metadata.References,
			CWE:         cweOf(r.Extra.Metadata.CWE).TakeOr(""),
			RuleID:      r.CheckID,
		},
	}, nil
}

func mapCppcheck(item parsers.RawFinding) (draft, error) {
	e, ok := item.(parsers.CppcheckError)
	if !ok {
		return draft{}, unexpected(item)
	}
	if len(e.Locations) == 0 {
		return draft{}, fmt.Errorf("cppcheck %s has no location", e.ID)
	}

	loc := e.Locations[0]
	return draft{
		severity: e.Severity,
		vuln: models.Vulnerability{
			Type:        e.ID,
			Location:    models.Location{File: loc.File, Line: loc.Line, Column: loc.Column},
			Title:       e.Msg,
			Description: firstNonEmpty(e.Verbose, e.Msg),
			CWE:         cweOf(e.CWE).TakeOr(""),
			RuleID:      e.ID,
		},
	}, nil
}

func mapClangTidy(item parsers.RawFinding) (draft, error) {
	d, ok := item.(parsers.ClangTidyDiagnostic)
	if !ok {
		return draft{}, unexpected(item)
	}

	check := firstNonEmpty(d.Check, "clang-diagnostic")
	return draft{
		severity: d.Level,
		vuln: models.Vulnerability{
			Type:        check,
			Location:    models.Location{File: d.File, Line: d.Line, Column: d.Column},
			Title:       d.Message,
			Description: d.Message,
			RuleID:      d.Check,
		},
	}, nil
}

func mapFlawfinder(item parsers.RawFinding) (draft, error) {
	h, ok := item.(parsers.FlawfinderHit)
	if !ok {
		return draft{}, unexpected(item)
	}

	var refs []string
	if h.HelpURI != "" {
		refs = []string{h.HelpURI}
	}
	return draft{
		severity: strconv.Itoa(h.Level),
		vuln: models.Vulnerability{
			Type:        firstNonEmpty(h.Category, h.Name),
			Location:    models.Location{File: h.File, Line: h.Line, Column: h.Column},
			Title:       h.Name,
			Description: h.Warning,
			Remediation: h.Suggestion,
			References:  refs,
			CWE:         cweOf(strings.Split(h.CWEs, "!")).TakeOr(""),
			RuleID:      h.Name,
		},
	}, nil
}

func mapBandit(item parsers.RawFinding) (draft, error) {
	b, ok := item.(parsers.BanditIssue)
	if !ok {
		return draft{}, unexpected(item)
	}

	refs := stringsOf([]string{b.MoreInfo, b.IssueCWE.Link})
	return draft{
		severity: b.IssueSeverity,
		vuln: models.Vulnerability{
			Type:        firstNonEmpty(b.TestName, b.TestID),
			Location:    models.Location{File: b.Filename, Line: b.LineNumber, Column: b.ColOffset},
			Title:       firstNonEmpty(b.TestID+" "+b.TestName, b.TestID),
			Description: b.IssueText,
			References:  refs,
			CWE:         cweOf(b.IssueCWE.ID).TakeOr(""),
			RuleID:      b.TestID,
		},
	}, nil
}

func mapESLint(item parsers.RawFinding) (draft, error) {
	m, ok := item.(parsers.ESLintMessage)
	if !ok {
		return draft{}, unexpected(item)
	}

	rule := firstNonEmpty(m.RuleID, "parse-error")
	return draft{
		severity: strconv.Itoa(m.Severity),
		vuln: models.Vulnerability{
			Type:        rule,
			Location:    models.Location{File: m.FilePath, Line: m.Line, Column: m.Column},
			Title:       rule,
			Description: m.Message,
			RuleID:      m.RuleID,
		},
	}, nil
}

func mapNpmAudit(item parsers.RawFinding) (draft, error) {
	a, ok := item.(parsers.NpmAuditAdvisory)
	if !ok {
		return draft{}, unexpected(item)
	}

	var (
		title   string
		refs    []string
		cwe     string
		through []string
	)
	for _, via := range a.Via {
		switch v := via.(type) {
		case string:
			through = append(through, v)
		case map[string]any:
			if title == "" {
				title = firstString(v, "title")
			}
			refs = append(refs, stringsOf(v["url"])...)
			if cwe == "" {
				cwe = cweOf(v["cwe"]).TakeOr("")
			}
		}
	}

	desc := fmt.Sprintf("%s %s is vulnerable", a.Package, firstNonEmpty(a.Range, "(all versions)"))
	if len(through) > 0 {
		desc += " through " + strings.Join(through, ", ")
	}

	var remediation string
	switch fix := a.FixAvailable.(type) {
	case bool:
		if fix {
			remediation = "Run npm audit fix"
		}
	case map[string]any:
		remediation = fmt.Sprintf("Upgrade %s to %s", firstString(fix, "name"), firstString(fix, "version"))
	}

	return draft{
		severity: a.Severity,
		vuln: models.Vulnerability{
			Type:        "vulnerable-dependency",
			Location:    models.Location{File: a.Manifest},
			Title:       firstNonEmpty(title, "Vulnerable dependency "+a.Package),
			Description: desc,
			Remediation: remediation,
			References:  refs,
			CWE:         cwe,
			RuleID:      a.Package,
		},
	}, nil
}

func mapTrivy(item parsers.RawFinding) (draft, error) {
	switch t := item.(type) {
	case parsers.TrivyVulnerability:
		var remediation string
		if t.FixedVersion != "" {
			remediation = fmt.Sprintf("Upgrade %s to %s", t.PkgName, t.FixedVersion)
		}
		refs := stringsOf(append([]string{t.PrimaryURL}, t.References...))
		return draft{
			severity: t.Severity,
			vuln: models.Vulnerability{
				Type:        "vulnerable-dependency",
				Location:    models.Location{File: t.Target},
				Title:       firstNonEmpty(t.VulnerabilityID+" in "+t.PkgName+": "+t.Title, t.VulnerabilityID),
				Description: firstNonEmpty(t.Description, t.Title),
				Remediation: remediation,
				References:  refs,
				CWE:         cweOf(t.CweIDs).TakeOr(""),
				RuleID:      t.VulnerabilityID,
			},
		}, nil
	case parsers.TrivyMisconfiguration:
		refs := stringsOf(append([]string{t.PrimaryURL}, t.References...))
		return draft{
			severity: t.Severity,
			vuln: models.Vulnerability{
				Type:        "misconfiguration",
				Location:    models.Location{File: t.Target, Line: t.CauseMetadata.StartLine},
				Title:       firstNonEmpty(t.Title, t.ID),
				Description: firstNonEmpty(t.Description, t.Message),
				Remediation: t.Resolution,
				References:  refs,
				RuleID:      t.ID,
			},
		}, nil
	}
	return draft{}, unexpected(item)
}

// mapGeneric handles loosely shaped findings from any tool.
func mapGeneric(m parsers.GenericFinding) (draft, error) {
	loc := locationOf(m)
	if loc.IsNone() {
		return draft{}, fmt.Errorf("no location in any known shape")
	}

	ruleID := firstString(m, "ruleId", "rule_id", "check_id", "id", "rule")
	return draft{
		severity: firstString(m, "severity", "level", "impact"),
		vuln: models.Vulnerability{
			Type:        firstString(m, "type", "category", "ruleId", "rule_id", "check_id"),
			Location:    loc.Unwrap(),
			Title:       firstNonEmpty(firstString(m, "title", "name"), ruleID),
			Description: firstText(m, "description", "message", "details").TakeOr(""),
			Remediation: firstText(m, "remediation", "fix", "recommendation").TakeOr(""),
			References:  stringsOf(m["references"]),
			CWE:         cweOf(m["cwe"]).TakeOr(""),
			RuleID:      ruleID,
		},
	}, nil
}

func lastSegment(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}
