package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeForFilesystem(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "scan-1", "scan-1"},
		{"separators", "a/b\\c:d", "a_b_c_d"},
		{"control chars", "a\x00b\x7f", "ab"},
		{"dot dot", "..", "unknown"},
		{"empty", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeForFilesystem(tt.input))
		})
	}
}

func TestCreateScanDirectory(t *testing.T) {
	base := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)

	dir, err := CreateScanDirectory(base, "../escape")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, ".._escape"), dir)
	assert.DirExists(t, dir)

	after, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, after)
}

func TestNewViperConfigWithoutFile(t *testing.T) {
	t.Setenv("SCANHUB_SERVER_PORT", "9090")

	v, err := NewViperConfigWithOptions(ConfigOptions{
		ConfigPath:  t.TempDir(),
		ConfigName:  "does-not-exist",
		ConfigType:  "yaml",
		EnvPrefix:   "SCANHUB",
		DefaultsMap: map[string]interface{}{"server.port": 8080, "snippet.window": 3},
	})
	require.NoError(t, err)

	assert.Equal(t, 9090, v.GetInt("server.port"))
	assert.Equal(t, 3, v.GetInt("snippet.window"))
}

func TestNewViperConfigExplicitFileMissing(t *testing.T) {
	_, err := NewViperConfigWithOptions(ConfigOptions{
		ConfigFile: filepath.Join(t.TempDir(), "missing.yaml"),
		ConfigType: "yaml",
	})
	assert.Error(t, err)
}
