package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerrors "scanhub/pkg/errors"
)

func TestResolveAliases(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		identifier string
		want       ToolName
	}{
		{"clang-tidy", ClangTidy},
		{"clang_tidy", ClangTidy},
		{"ClangTidy", ClangTidy},
		{"clangtidy", ClangTidy},
		{" CLANG-TIDY ", ClangTidy},
		{"cppcheck", Cppcheck},
		{"cpp-check", Cppcheck},
		{"npm-audit", NpmAudit},
		{"npmAudit", NpmAudit},
		{"Semgrep", Semgrep},
		{"trivy-fs", Trivy},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			got, err := r.Resolve(tt.identifier)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveUnknownTool(t *testing.T) {
	_, err := DefaultRegistry().Resolve("sonarqube")
	require.Error(t, err)
	assert.ErrorIs(t, err, scanerrors.ErrToolNotFound)
}

func TestCanonicalNamesResolveToThemselves(t *testing.T) {
	r := DefaultRegistry()
	for _, d := range r.All() {
		got, err := r.Resolve(string(d.Name))
		require.NoError(t, err)
		assert.Equal(t, d.Name, got)

		for _, alias := range d.Aliases {
			got, err := r.Resolve(alias)
			require.NoError(t, err, alias)
			assert.Equal(t, d.Name, got, alias)
		}
	}
}

func TestNewRegistryRejectsOverlappingAliases(t *testing.T) {
	_, err := NewRegistry(
		Descriptor{Name: "alpha", Aliases: []string{"shared"}},
		Descriptor{Name: "beta", Aliases: []string{"SHARED"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already belongs to alpha")

	_, err = NewRegistry(Descriptor{Name: "alpha"}, Descriptor{Name: "alpha"})
	require.Error(t, err)
}

func TestAllReturnsCopy(t *testing.T) {
	r := DefaultRegistry()
	all := r.All()
	all[0].Name = "mutated"

	d, ok := r.Descriptor(Semgrep)
	require.True(t, ok)
	assert.Equal(t, Semgrep, d.Name)
	assert.Equal(t, Semgrep, r.All()[0].Name)
}
