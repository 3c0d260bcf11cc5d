package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"scanhub/internal/models"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
	"scanhub/pkg/taxonomy"
	"scanhub/pkg/testutil"
	"scanhub/pkg/tools"
)

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()

	scans := []models.Scan{
		{ID: "scan-legacy", Status: models.ScanStatusCompleted,
			SelectedTools:  []string{"clang-tidy", "cpp-check", "foobar-lint"},
			RequestedTools: []string{"clang-tidy", "cpp-check", "foobar-lint"},
			IssuesCounts:   models.IssuesCounts{High: 1, Medium: 1, Low: 2, Total: 4},
			ToolCounts:     map[string]int{"clang-tidy": 1, "cpp-check": 1, "foobar-lint": 1, "Clang_Tidy": 1}},
		{ID: "scan-canonical", Status: models.ScanStatusCompleted,
			SelectedTools:  []string{"clangTidy", "cppcheck"},
			RequestedTools: []string{"clangTidy", "cppcheck"}},
		{ID: "scan-duplicate", Status: models.ScanStatusCompleted,
			SelectedTools:  []string{"clang-tidy", "clangTidy"},
			RequestedTools: []string{"clang-tidy", "clangTidy"}},
	}
	require.NoError(t, db.Create(&scans).Error)

	vulns := []models.Vulnerability{
		{ID: "v1", ScanID: "scan-legacy", Tool: "clang-tidy", Severity: taxonomy.SeverityHigh},
		{ID: "v2", ScanID: "scan-legacy", Tool: "cpp-check", Severity: taxonomy.SeverityLow},
		{ID: "v3", ScanID: "scan-legacy", Tool: "foobar-lint", Severity: taxonomy.SeverityLow},
		{ID: "v4", ScanID: "scan-canonical", Tool: tools.ClangTidy, Severity: taxonomy.SeverityMedium},
		{ID: "v5", ScanID: "scan-legacy", Tool: "Clang_Tidy", Severity: taxonomy.SeverityMedium},
	}
	require.NoError(t, db.Create(&vulns).Error)
}

func newRunner(db *gorm.DB) *Runner {
	return NewRunner(db, tools.DefaultRegistry(), logger.NewNopLogger(), WithBatchSize(2))
}

func TestCanonicalToolNames(t *testing.T) {
	db := testutil.NewTestDB(t)
	seed(t, db)

	res, err := newRunner(db).ApplyMigration(context.Background(), CanonicalToolNamesID)
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.ElementsMatch(t, []string{"scan-legacy", "scan-duplicate"}, res.UpdatedScanIDs)
	assert.ElementsMatch(t, []string{"v1", "v2", "v5"}, res.UpdatedVulnerabilityIDs)
	assert.Equal(t, []string{"foobar-lint"}, res.Unresolved)

	var legacy models.Scan
	require.NoError(t, db.First(&legacy, "id = ?", "scan-legacy").Error)
	assert.Equal(t, []string{"clangTidy", "cppcheck", "foobar-lint"}, legacy.SelectedTools)
	assert.Equal(t, []string{"clang-tidy", "cpp-check", "foobar-lint"}, legacy.RequestedTools, "requested tools keep user input")

	assert.Equal(t, map[string]int{"clangTidy": 2, "cppcheck": 1, "foobar-lint": 1}, legacy.ToolCounts)
	assert.Equal(t, models.IssuesCounts{High: 1, Medium: 1, Low: 2, Total: 4}, legacy.IssuesCounts)

	var dup models.Scan
	require.NoError(t, db.First(&dup, "id = ?", "scan-duplicate").Error)
	assert.Equal(t, []string{"clangTidy"}, dup.SelectedTools)

	var vulns []models.Vulnerability
	require.NoError(t, db.Order("id").Find(&vulns).Error)
	got := map[string]tools.ToolName{}
	for _, v := range vulns {
		got[v.ID] = v.Tool
	}
	assert.Equal(t, map[string]tools.ToolName{
		"v1": tools.ClangTidy,
		"v2": tools.Cppcheck,
		"v3": "foobar-lint",
		"v4": tools.ClangTidy,
		"v5": tools.ClangTidy,
	}, got)

	logs, err := newRunner(db).Applied(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, CanonicalToolNamesID, logs[0].ID)
	assert.Equal(t, 2, logs[0].UpdatedScans)
	assert.Equal(t, 3, logs[0].UpdatedVulnerabilities)
}

func TestApplyMigrationIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	seed(t, db)
	r := newRunner(db)

	_, err := r.ApplyMigration(context.Background(), CanonicalToolNamesID)
	require.NoError(t, err)

	var before []models.Vulnerability
	require.NoError(t, db.Order("id").Find(&before).Error)

	res, err := r.ApplyMigration(context.Background(), CanonicalToolNamesID)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.UpdatedScans)

	var after []models.Vulnerability
	require.NoError(t, db.Order("id").Find(&after).Error)
	assert.Equal(t, before, after)
}

func TestApplyMigrationRollsBackAndReportsRewrites(t *testing.T) {
	db := testutil.NewTestDB(t)
	seed(t, db)

	diskFull := errors.New("disk full")
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_vulnerabilities", func(tx *gorm.DB) {
		if tx.Statement.Table == "vulnerabilities" {
			_ = tx.AddError(diskFull)
		}
	}))

	r := newRunner(db)
	_, err := r.ApplyMigration(context.Background(), CanonicalToolNamesID)
	require.Error(t, err)
	assert.ErrorIs(t, err, scanerrors.ErrMigration)
	assert.ErrorIs(t, err, diskFull)

	var merr *scanerrors.MigrationError
	require.ErrorAs(t, err, &merr)
	assert.ElementsMatch(t, []string{"scan-legacy", "scan-duplicate"}, merr.UpdatedScanIDs)
	assert.Empty(t, merr.UpdatedVulnerabilityIDs)

	var legacy models.Scan
	require.NoError(t, db.First(&legacy, "id = ?", "scan-legacy").Error)
	assert.Equal(t, []string{"clang-tidy", "cpp-check", "foobar-lint"}, legacy.SelectedTools, "transaction rolled back")

	logs, err := r.Applied(context.Background())
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.NoError(t, db.Callback().Update().Remove("test:fail_vulnerabilities"))
	res, err := r.ApplyMigration(context.Background(), CanonicalToolNamesID)
	require.NoError(t, err, "re-run after failure is safe")
	assert.Equal(t, 2, res.UpdatedScans)
}

func TestApplyAllAndRegister(t *testing.T) {
	db := testutil.NewTestDB(t)
	r := newRunner(db)

	calls := 0
	require.NoError(t, r.Register(Migration{
		ID:          "0002_backfill",
		Description: "test",
		Apply: func(ctx context.Context, tx *gorm.DB, report *Report) error {
			calls++
			return nil
		},
	}))
	assert.Error(t, r.Register(Migration{ID: CanonicalToolNamesID, Apply: func(context.Context, *gorm.DB, *Report) error { return nil }}))

	results, err := r.ApplyAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, calls)

	results, err = r.ApplyAll(context.Background())
	require.NoError(t, err)
	for _, res := range results {
		assert.True(t, res.Skipped)
	}
	assert.Equal(t, 1, calls)
}

func TestApplyUnknownMigration(t *testing.T) {
	_, err := newRunner(testutil.NewTestDB(t)).ApplyMigration(context.Background(), "9999_nope")
	assert.ErrorIs(t, err, scanerrors.ErrMigration)
}
