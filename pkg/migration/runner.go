// Package migration applies versioned data migrations to the scan store.
// Each migration runs once, inside one transaction, and is recorded in the
// migration_logs table.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"scanhub/internal/models"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
	"scanhub/pkg/tools"
)

const defaultBatchSize = 500

// Result describes one migration run.
type Result struct {
	ID                      string   `json:"id"`
	Skipped                 bool     `json:"skipped"`
	UpdatedScans            int      `json:"updatedScans"`
	UpdatedVulnerabilities  int      `json:"updatedVulnerabilities"`
	UpdatedScanIDs          []string `json:"-"`
	UpdatedVulnerabilityIDs []string `json:"-"`
	// Unresolved lists legacy tool values no canonical name exists for. They
	// are left as they are.
	Unresolved []string `json:"unresolved,omitempty"`
}

// Report collects what a migration changed while it runs.
type Report struct {
	scanIDs    []string
	scanSeen   map[string]struct{}
	vulnIDs    []string
	unresolved map[string]struct{}
}

// ScanUpdated records scans once no matter how many steps touched them.
func (r *Report) ScanUpdated(ids ...string) {
	if r.scanSeen == nil {
		r.scanSeen = make(map[string]struct{})
	}
	for _, id := range ids {
		if _, ok := r.scanSeen[id]; ok {
			continue
		}
		r.scanSeen[id] = struct{}{}
		r.scanIDs = append(r.scanIDs, id)
	}
}

func (r *Report) VulnerabilitiesUpdated(ids ...string) { r.vulnIDs = append(r.vulnIDs, ids...) }

func (r *Report) Unresolved(value string) {
	if r.unresolved == nil {
		r.unresolved = make(map[string]struct{})
	}
	r.unresolved[value] = struct{}{}
}

func (r *Report) result(id string) Result {
	unresolved := make([]string, 0, len(r.unresolved))
	for v := range r.unresolved {
		unresolved = append(unresolved, v)
	}
	sort.Strings(unresolved)

	return Result{
		ID:                      id,
		UpdatedScans:            len(r.scanIDs),
		UpdatedVulnerabilities:  len(r.vulnIDs),
		UpdatedScanIDs:          r.scanIDs,
		UpdatedVulnerabilityIDs: r.vulnIDs,
		Unresolved:              unresolved,
	}
}

// Migration is one versioned data rewrite. Apply runs inside the migration's
// transaction and records its changes on the report.
type Migration struct {
	ID          string
	Description string
	Apply       func(ctx context.Context, tx *gorm.DB, report *Report) error
}

type Runner struct {
	db         *gorm.DB
	registry   *tools.Registry
	log        *logger.Logger
	batchSize  int
	migrations []Migration
}

type OptFunc func(*Runner)

func WithBatchSize(n int) OptFunc {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewRunner returns a runner with the built-in migrations registered. They
// rewrite through registry, the same one live normalization uses.
func NewRunner(db *gorm.DB, registry *tools.Registry, log *logger.Logger, opts ...OptFunc) *Runner {
	r := &Runner{
		db:        db,
		registry:  registry,
		log:       log,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.migrations = []Migration{canonicalToolNames(r.registry, r.batchSize)}
	return r
}

// Register adds a migration after the built-in ones.
func (r *Runner) Register(m Migration) error {
	if m.ID == "" || m.Apply == nil {
		return fmt.Errorf("%w: migration needs an id and an apply func", scanerrors.ErrMigration)
	}
	if _, ok := r.find(m.ID); ok {
		return fmt.Errorf("%w: duplicate migration %s", scanerrors.ErrMigration, m.ID)
	}
	r.migrations = append(r.migrations, m)
	return nil
}

func (r *Runner) Migrations() []Migration {
	out := make([]Migration, len(r.migrations))
	copy(out, r.migrations)
	return out
}

func (r *Runner) find(id string) (Migration, bool) {
	for _, m := range r.migrations {
		if m.ID == id {
			return m, true
		}
	}
	return Migration{}, false
}

// ApplyMigration runs the migration unless its log entry exists. On failure
// nothing is committed and the returned *errors.MigrationError lists the
// rewrites that were rolled back.
func (r *Runner) ApplyMigration(ctx context.Context, id string) (Result, error) {
	m, ok := r.find(id)
	if !ok {
		return Result{ID: id}, fmt.Errorf("%w: unknown migration %s", scanerrors.ErrMigration, id)
	}

	applied, err := r.isApplied(ctx, id)
	if err != nil {
		return Result{ID: id}, &scanerrors.MigrationError{ID: id, Err: err}
	}
	if applied {
		r.log.WithFields(logger.Fields{"migration": id}).Info("Migration already applied, skipping")
		return Result{ID: id, Skipped: true}, nil
	}

	start := time.Now()
	report := &Report{}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.Apply(ctx, tx, report); err != nil {
			return err
		}
		entry := models.MigrationLog{
			ID:                     m.ID,
			Description:            m.Description,
			AppliedAt:              time.Now().UTC(),
			UpdatedScans:           len(report.scanIDs),
			UpdatedVulnerabilities: len(report.vulnIDs),
		}
		return tx.Create(&entry).Error
	})

	res := report.result(id)
	if err != nil {
		r.log.WithFields(logger.Fields{
			"migration":                   id,
			"rolled_back_scans":           res.UpdatedScans,
			"rolled_back_vulnerabilities": res.UpdatedVulnerabilities,
		}).WithError(err).Error("Migration failed")
		return res, &scanerrors.MigrationError{
			ID:                      id,
			UpdatedScanIDs:          res.UpdatedScanIDs,
			UpdatedVulnerabilityIDs: res.UpdatedVulnerabilityIDs,
			Err:                     err,
		}
	}

	r.log.WithFields(logger.Fields{
		"migration":               id,
		"updated_scans":           res.UpdatedScans,
		"updated_vulnerabilities": res.UpdatedVulnerabilities,
		"unresolved":              res.Unresolved,
		"duration":                time.Since(start).String(),
	}).Info("Migration applied")
	return res, nil
}

// ApplyAll applies every pending migration in order and stops at the first
// failure.
func (r *Runner) ApplyAll(ctx context.Context) ([]Result, error) {
	var results []Result
	for _, m := range r.migrations {
		res, err := r.ApplyMigration(ctx, m.ID)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Applied returns the migration log, oldest first.
func (r *Runner) Applied(ctx context.Context) ([]models.MigrationLog, error) {
	var logs []models.MigrationLog
	if err := r.db.WithContext(ctx).Order("applied_at, id").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to read migration log: %v", scanerrors.ErrStorage, err)
	}
	return logs, nil
}

func (r *Runner) isApplied(ctx context.Context, id string) (bool, error) {
	var entry models.MigrationLog
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to read migration log: %w", err)
	}
}
