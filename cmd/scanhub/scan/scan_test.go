package scan

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhub/internal/services"
	"scanhub/pkg/testutil"
	"scanhub/pkg/tools"
)

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateTestFile(t, dir, "main.c", "int main(void) { return 0; }\n")
	testutil.CreateTestFile(t, filepath.Join(dir, "lib"), "util.py", "print('x')\n")
	testutil.CreateTestFile(t, filepath.Join(dir, ".git"), "HEAD", "ref: refs/heads/main\n")

	files, err := CollectFiles(dir)
	require.NoError(t, err)

	assert.Equal(t, []services.FileInput{
		{Name: "lib/util.py", Size: 11, Path: "lib/util.py"},
		{Name: "main.c", Size: 29, Path: "main.c"},
	}, files)
}

func TestCollectFilesMissingDir(t *testing.T) {
	_, err := CollectFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestListToolsCommand(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateTestFile(t, dir, "trivy.yaml", "disabled: true\n")
	t.Setenv("SCANHUB_TOOLS_CONFIG_DIR", dir)

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, out string)
	}{
		{
			name: "text",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "Available Tools:")
				assert.Contains(t, out, "• clangTidy (clang-tidy)")
				assert.Contains(t, out, "Aliases: clang-tidy, tidy")
				assert.Contains(t, out, "Disabled")
			},
		},
		{
			name: "json",
			args: []string{"--json"},
			check: func(t *testing.T, out string) {
				var infos []services.ToolInfo
				require.NoError(t, json.Unmarshal([]byte(out), &infos))
				require.Len(t, infos, len(tools.DefaultRegistry().All()))
				for _, info := range infos {
					assert.Equal(t, info.Name != tools.Trivy, info.Enabled, info.Name)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewListToolsCommand()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			tt.check(t, out.String())
		})
	}
}
