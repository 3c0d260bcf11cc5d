package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerrors "scanhub/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scanhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "scanhub.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Engine.MaxWorkers)
	assert.Equal(t, 2, cfg.Engine.MaxConcurrentScans)
	assert.Equal(t, 10*time.Minute, cfg.Engine.ToolTimeout)
	assert.Equal(t, 5*time.Second, cfg.Engine.CancelGrace)
	assert.Equal(t, 3, cfg.Snippet.Window)
	assert.InDelta(t, 0.25, cfg.Normalizer.FallbackWarnRatio, 1e-9)
	assert.Equal(t, "./scans", cfg.Workspace.Root)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_workers: 8
  tool_timeout: 90s
normalizer:
  rules:
    - when: tool == "cppcheck" && type == "memleak"
      severity: critical
`)
	t.Setenv("SCANHUB_SNIPPET_WINDOW", "5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.MaxWorkers)
	assert.Equal(t, 90*time.Second, cfg.Engine.ToolTimeout)
	assert.Equal(t, 5, cfg.Snippet.Window)
	require.Len(t, cfg.Normalizer.Rules, 1)
	assert.Equal(t, "critical", cfg.Normalizer.Rules[0].Severity)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown driver", "database:\n  driver: mysql\n"},
		{"zero workers", "engine:\n  max_workers: 0\n"},
		{"ratio above one", "normalizer:\n  fallback_warn_ratio: 2\n"},
		{"discord without channel", "discord:\n  token: abc\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, scanerrors.ErrInvalidConfig)
		})
	}
}

func TestSeverityRulesFromFile(t *testing.T) {
	rulesPath := filepath.Join(t.TempDir(), "rules.toml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`
[[rules]]
when = 'tool == "semgrep"'
severity = "high"
`), 0o644))

	cfg, err := LoadConfig(writeConfig(t, "normalizer:\n  rules_file: "+rulesPath+"\n"))
	require.NoError(t, err)

	rules, err := cfg.SeverityRules()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, `tool == "semgrep"`, rules[0].When)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
}
