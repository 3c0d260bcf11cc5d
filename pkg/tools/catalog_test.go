package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhub/pkg/logger"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestCatalogDefaults(t *testing.T) {
	c, err := NewCatalog(DefaultRegistry(), "", logger.NewNopLogger())
	require.NoError(t, err)

	for _, d := range DefaultRegistry().All() {
		cfg, ok := c.Get(d.Name)
		require.True(t, ok, d.Name)
		assert.NotEmpty(t, cfg.Command, d.Name)
		assert.True(t, c.Enabled(d.Name))
	}
}

func TestCatalogOverridesMergeWithDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "tidy.yaml", "name: clang-tidy\ntimeout: 30s\ncommand: /opt/llvm/bin/clang-tidy\n")
	writeConfig(t, dir, "bandit.yml", "disabled: true\n")
	writeConfig(t, dir, "broken.yaml", "name: [unterminated\n")
	writeConfig(t, dir, "unknown.yaml", "name: sonarqube\ncommand: sonar\n")
	writeConfig(t, dir, "invalid.yaml", "name: trivy\nformat: xml\n")
	writeConfig(t, dir, "notes.txt", "ignored")

	c, err := NewCatalog(DefaultRegistry(), dir, logger.NewNopLogger())
	require.NoError(t, err)

	tidy, ok := c.Get(ClangTidy)
	require.True(t, ok)
	assert.Equal(t, "clangTidy", tidy.Name)
	assert.Equal(t, "/opt/llvm/bin/clang-tidy", tidy.Command)
	assert.Equal(t, 30*time.Second, tidy.Timeout)
	assert.NotEmpty(t, tidy.FileGlobs, "unset fields keep defaults")

	assert.False(t, c.Enabled(Bandit))

	trivy, _ := c.Get(Trivy)
	assert.Equal(t, "", trivy.Format, "invalid override is skipped")
}

func TestCatalogGetReturnsCopy(t *testing.T) {
	c, err := NewCatalog(DefaultRegistry(), "", logger.NewNopLogger())
	require.NoError(t, err)

	cfg, _ := c.Get(Semgrep)
	cfg.Flags[0].Flag = "mutated"

	again, _ := c.Get(Semgrep)
	assert.Equal(t, "scan", again.Flags[0].Flag)
}

func TestCatalogWatchReloads(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCatalog(DefaultRegistry(), dir, logger.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Watch(ctx))

	writeConfig(t, dir, "semgrep.yaml", "disabled: true\n")

	assert.Eventually(t, func() bool {
		return !c.Enabled(Semgrep)
	}, 5*time.Second, 50*time.Millisecond)
}
