package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"single without newline", "int x;", 1},
		{"trailing newline", "a\nb\n", 2},
		{"no trailing newline", "a\nb\nc", 3},
		{"binary", "ELF\x00\x01\n\n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountLines(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountFileLinesSkipsDataFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.c")
	data := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(src, []byte("int main() {\n  return 0;\n}\n"), 0o644))
	require.NoError(t, os.WriteFile(data, []byte("{}\n{}\n"), 0o644))

	n, err := CountFileLines(src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = CountFileLines(data)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = CountFileLines(filepath.Join(dir, "missing.c"))
	assert.Error(t, err)
}
