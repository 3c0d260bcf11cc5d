package normalizer

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"scanhub/internal/models"
	"scanhub/pkg/taxonomy"
)

// Rule overrides the mapped severity of findings matching When, an expr
// predicate over RuleEnv, e.g. `tool == "cppcheck" && type == "nullPointer"`.
type Rule struct {
	When     string `mapstructure:"when" yaml:"when" toml:"when"`
	Severity string `mapstructure:"severity" yaml:"severity" toml:"severity"`
}

type rulesFile struct {
	Rules []Rule `toml:"rules"`
}

// ParseRules reads [[rules]] tables from a TOML document.
func ParseRules(r io.Reader) ([]Rule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read rules: %w", err)
	}
	var f rulesFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("could not decode toml: %w", err)
	}
	return f.Rules, nil
}

func LoadRulesFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open rules file: %w", err)
	}
	defer f.Close()

	return ParseRules(f)
}

// RuleEnv is what a rule predicate can see.
type RuleEnv struct {
	Tool     string `expr:"tool"`
	Severity string `expr:"severity"`
	Type     string `expr:"type"`
	Title    string `expr:"title"`
	RuleID   string `expr:"rule_id"`
	File     string `expr:"file"`
	Line     int    `expr:"line"`
	CWE      string `expr:"cwe"`
}

type compiledRule struct {
	predicate *vm.Program
	severity  taxonomy.Severity
}

func compileRule(r Rule) (compiledRule, error) {
	sev, err := taxonomy.ParseSeverity(r.Severity)
	if err != nil {
		return compiledRule{}, err
	}
	program, err := expr.Compile(r.When, expr.Env(RuleEnv{}), expr.AsBool())
	if err != nil {
		return compiledRule{}, fmt.Errorf("error compiling predicate: %w", err)
	}
	return compiledRule{predicate: program, severity: sev}, nil
}

// applyRules returns the severity of the first matching rule, or the
// finding's current severity.
func (n *Normalizer) applyRules(v models.Vulnerability) taxonomy.Severity {
	if len(n.rules) == 0 {
		return v.Severity
	}

	env := RuleEnv{
		Tool:     string(v.Tool),
		Severity: string(v.Severity),
		Type:     v.Type,
		Title:    v.Title,
		RuleID:   v.RuleID,
		File:     v.Location.File,
		Line:     v.Location.Line,
		CWE:      v.CWE,
	}
	for _, r := range n.rules {
		out, err := expr.Run(r.predicate, env)
		if err != nil {
			n.log.WithError(err).Warn("Severity rule failed to evaluate")
			continue
		}
		if matched, _ := out.(bool); matched {
			return r.severity
		}
	}
	return v.Severity
}
