// Package normalizer maps every tool's raw findings onto the one
// vulnerability record shape. It is the only code that looks inside raw tool
// output.
package normalizer

import (
	"fmt"
	"path/filepath"
	"strings"

	"scanhub/internal/models"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
	"scanhub/pkg/parsers"
	"scanhub/pkg/taxonomy"
	"scanhub/pkg/tools"
)

// NoDescription replaces descriptions a tool did not provide.
const NoDescription = "No description available"

const defaultFallbackWarnRatio = 0.25

// Result is the normalized batch of one adapter run.
type Result struct {
	Vulnerabilities   []models.Vulnerability
	Dropped           int
	SeverityFallbacks int
}

// FallbackRatio is the share of findings whose severity was unmapped.
func (r Result) FallbackRatio() float64 {
	total := len(r.Vulnerabilities)
	if total == 0 {
		return 0
	}
	return float64(r.SeverityFallbacks) / float64(total)
}

type Normalizer struct {
	log               *logger.Logger
	rules             []compiledRule
	fallbackWarnRatio float64
}

type OptFunc func(*Normalizer)

// WithFallbackWarnRatio sets the unmapped severity share above which a tool is
// flagged in the logs.
func WithFallbackWarnRatio(ratio float64) OptFunc {
	return func(n *Normalizer) {
		if ratio > 0 {
			n.fallbackWarnRatio = ratio
		}
	}
}

// New compiles the severity override rules; an invalid rule is an error.
func New(log *logger.Logger, rules []Rule, opts ...OptFunc) (*Normalizer, error) {
	n := &Normalizer{
		log:               log,
		fallbackWarnRatio: defaultFallbackWarnRatio,
	}
	for _, opt := range opts {
		opt(n)
	}

	for i, r := range rules {
		cr, err := compileRule(r)
		if err != nil {
			return nil, scanerrors.NewConfigError(fmt.Sprintf("normalizer.rules[%d]", i), r.When, err.Error())
		}
		n.rules = append(n.rules, cr)
	}
	return n, nil
}

// Normalize converts one adapter's raw findings. Findings that cannot be
// mapped are dropped and logged; the rest of the batch is kept in order.
func (n *Normalizer) Normalize(tool tools.ToolName, raw parsers.RawFindings) Result {
	var res Result

	mapper, known := mappers[tool]
	for item := range raw.All() {
		var (
			d   draft
			err error
		)
		switch f := item.(type) {
		case parsers.GenericFinding:
			d, err = mapGeneric(f)
		default:
			if !known {
				err = fmt.Errorf("no mapping for tool %s", tool)
				break
			}
			d, err = mapper(item)
		}
		if err == nil && d.vuln.Location.File == "" {
			err = fmt.Errorf("finding has no file location")
		}
		if err != nil {
			res.Dropped++
			n.log.WithFields(logger.Fields{
				"tool":  tool,
				"error": fmt.Errorf("%w: %v", scanerrors.ErrNormalization, err).Error(),
			}).Warn("Dropping finding")
			continue
		}

		v := d.vuln
		v.Tool = tool
		v.Location.File = relativize(raw.Root, v.Location.File)

		sev, ok := lookupSeverity(tool, d.severity)
		if !ok {
			res.SeverityFallbacks++
			n.log.WithFields(logger.Fields{
				"tool":     tool,
				"severity": d.severity,
			}).Debug("Unmapped severity, using default")
		}
		v.Severity = sev
		v.Severity = n.applyRules(v)

		finish(&v)
		res.Vulnerabilities = append(res.Vulnerabilities, v)
	}

	if ratio := res.FallbackRatio(); ratio > n.fallbackWarnRatio {
		n.log.WithFields(logger.Fields{
			"tool":      tool,
			"fallbacks": res.SeverityFallbacks,
			"findings":  len(res.Vulnerabilities),
			"ratio":     fmt.Sprintf("%.2f", ratio),
		}).Warn("Tool reports many severities without a mapping")
	}

	return res
}

func finish(v *models.Vulnerability) {
	v.Title = strings.TrimSpace(v.Title)
	v.Description = strings.TrimSpace(v.Description)
	if v.Description == "" {
		v.Description = NoDescription
	}
	if v.Title == "" {
		v.Title = firstNonEmpty(v.Type, "Untitled finding")
	}
	if v.Type == "" {
		v.Type = "generic"
	}
	if v.References == nil {
		v.References = []string{}
	}
	if v.Location.Line < 0 {
		v.Location.Line = 0
	}
	if v.Location.Column < 0 {
		v.Location.Column = 0
	}
	v.Status = taxonomy.TriageOpen
}

// relativize makes paths under root relative, so stored locations do not
// depend on where the workspace lived.
func relativize(root, file string) string {
	file = filepath.Clean(filepath.FromSlash(file))
	if root != "" && filepath.IsAbs(file) {
		if rel, err := filepath.Rel(root, file); err == nil && !strings.HasPrefix(rel, "..") {
			file = rel
		}
	}
	return filepath.ToSlash(file)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
