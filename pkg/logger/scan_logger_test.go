package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanLoggerWritesWorkspaceFiles(t *testing.T) {
	dir := t.TempDir()

	sl, err := NewScanLogger("scan-1", dir, logrus.InfoLevel, nil)
	require.NoError(t, err)

	sl.LogToolFailures(map[string]string{"cppcheck": "tool timed out"})
	sl.LogError("normalizer", errors.New("missing location"), Fields{"tool": "semgrep"})
	sl.LogScanFinished("completed", 3)
	require.NoError(t, sl.Close())

	scanLog, err := os.ReadFile(filepath.Join(dir, "scan.log"))
	require.NoError(t, err)
	assert.Contains(t, string(scanLog), "Scan ID: scan-1")
	assert.Contains(t, string(scanLog), "cppcheck: tool timed out")
	assert.Contains(t, string(scanLog), "SCAN COMPLETED")

	errorLog, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errorLog), "Error in normalizer: missing location")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("nonsense"))
}
