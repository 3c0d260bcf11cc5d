package tools

import (
	"fmt"
	"strings"

	scanerrors "scanhub/pkg/errors"
)

// ToolName is the canonical identifier of an analyzer. It is the only tool
// identity persisted or compared anywhere else in scanhub.
type ToolName string

const (
	Semgrep    ToolName = "semgrep"
	Cppcheck   ToolName = "cppcheck"
	ClangTidy  ToolName = "clangTidy"
	Flawfinder ToolName = "flawfinder"
	Bandit     ToolName = "bandit"
	ESLint     ToolName = "eslint"
	NpmAudit   ToolName = "npmAudit"
	Trivy      ToolName = "trivy"
)

func (n ToolName) String() string { return string(n) }

type Category string

const (
	CategorySAST       Category = "sast"
	CategoryLinter     Category = "linter"
	CategoryDependency Category = "dependency"
)

// Descriptor describes one canonical tool.
type Descriptor struct {
	Name        ToolName `json:"name"`
	DisplayName string   `json:"displayName"`
	Category    Category `json:"category"`
	Aliases     []string `json:"aliases"`
}

var builtinDescriptors = []Descriptor{
	{Name: Semgrep, DisplayName: "Semgrep", Category: CategorySAST, Aliases: []string{"semgrep-oss", "sg"}},
	{Name: Cppcheck, DisplayName: "Cppcheck", Category: CategoryLinter, Aliases: []string{"cpp-check"}},
	{Name: ClangTidy, DisplayName: "clang-tidy", Category: CategoryLinter, Aliases: []string{"clang-tidy", "tidy"}},
	{Name: Flawfinder, DisplayName: "Flawfinder", Category: CategorySAST, Aliases: []string{"flaw-finder"}},
	{Name: Bandit, DisplayName: "Bandit", Category: CategorySAST, Aliases: []string{"pybandit"}},
	{Name: ESLint, DisplayName: "ESLint", Category: CategoryLinter, Aliases: []string{"es-lint"}},
	{Name: NpmAudit, DisplayName: "npm audit", Category: CategoryDependency, Aliases: []string{"npm-audit", "npm"}},
	{Name: Trivy, DisplayName: "Trivy", Category: CategoryDependency, Aliases: []string{"trivy-fs"}},
}

// Registry maps every accepted spelling of a tool to its canonical name.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	descriptors []Descriptor
	byName      map[ToolName]Descriptor
	index       map[string]ToolName
}

// NewRegistry builds a registry and rejects alias sets that overlap.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		byName: make(map[ToolName]Descriptor, len(descriptors)),
		index:  make(map[string]ToolName),
	}

	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("descriptor without canonical name")
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate canonical tool %q", d.Name)
		}

		keys := append([]string{string(d.Name)}, d.Aliases...)
		for _, alias := range keys {
			key := NormalizeIdentifier(alias)
			if key == "" {
				continue
			}
			if owner, taken := r.index[key]; taken && owner != d.Name {
				return nil, fmt.Errorf("alias %q of %s already belongs to %s", alias, d.Name, owner)
			}
			r.index[key] = d.Name
		}

		d.Aliases = append([]string(nil), d.Aliases...)
		r.byName[d.Name] = d
		r.descriptors = append(r.descriptors, d)
	}

	return r, nil
}

var defaultRegistry = mustRegistry(builtinDescriptors...)

func mustRegistry(descriptors ...Descriptor) *Registry {
	r, err := NewRegistry(descriptors...)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRegistry returns the registry of built-in analyzers.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NormalizeIdentifier folds case and drops separators so that "clang-tidy",
// "clang_tidy" and "ClangTidy" share one lookup key.
func NormalizeIdentifier(identifier string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '.', ' ', '\t', '\n':
			return -1
		}
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, identifier)
}

// Resolve maps any accepted identifier to its canonical tool name.
func (r *Registry) Resolve(identifier string) (ToolName, error) {
	if name, ok := r.index[NormalizeIdentifier(identifier)]; ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", scanerrors.ErrToolNotFound, identifier)
}

// MustResolve panics on unknown identifiers.
func (r *Registry) MustResolve(identifier string) ToolName {
	name, err := r.Resolve(identifier)
	if err != nil {
		panic(err)
	}
	return name
}

func (r *Registry) Descriptor(name ToolName) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns the descriptors in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}
