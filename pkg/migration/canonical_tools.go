package migration

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"scanhub/internal/models"
	"scanhub/pkg/aggregate"
	"scanhub/pkg/tools"
)

const CanonicalToolNamesID = "0001_canonical_tool_names"

// canonicalToolNames rewrites legacy tool spellings in scans' selected tools
// and in vulnerabilities. Requested tools keep the user's input. Scans whose
// vulnerabilities moved get their cached counts recomputed so the per-tool
// buckets follow the new names.
func canonicalToolNames(registry *tools.Registry, batchSize int) Migration {
	return Migration{
		ID:          CanonicalToolNamesID,
		Description: "Rewrite persisted tool identifiers to canonical names",
		Apply: func(ctx context.Context, tx *gorm.DB, report *Report) error {
			if err := rewriteScans(tx, registry, batchSize, report); err != nil {
				return err
			}
			affected, err := rewriteVulnerabilities(tx, registry, batchSize, report)
			if err != nil {
				return err
			}
			return recount(tx, affected, report)
		},
	}
}

func rewriteScans(tx *gorm.DB, registry *tools.Registry, batchSize int, report *Report) error {
	var scans []models.Scan
	res := tx.Model(&models.Scan{}).Select("id", "selected_tools").
		FindInBatches(&scans, batchSize, func(batch *gorm.DB, _ int) error {
			for _, s := range scans {
				rewritten := canonicalize(registry, s.SelectedTools, report)
				if slices.Equal(rewritten, s.SelectedTools) {
					continue
				}
				err := tx.Model(&models.Scan{ID: s.ID}).
					Select("SelectedTools").
					Updates(&models.Scan{SelectedTools: rewritten}).Error
				if err != nil {
					return fmt.Errorf("failed to rewrite scan %s: %w", s.ID, err)
				}
				report.ScanUpdated(s.ID)
			}
			return nil
		})
	return res.Error
}

// rewriteVulnerabilities returns the ids of the scans owning rewritten rows.
func rewriteVulnerabilities(tx *gorm.DB, registry *tools.Registry, batchSize int, report *Report) ([]string, error) {
	var (
		vulns    []models.Vulnerability
		affected []string
	)
	seen := make(map[string]bool)
	res := tx.Model(&models.Vulnerability{}).Select("id", "scan_id", "tool").
		FindInBatches(&vulns, batchSize, func(batch *gorm.DB, _ int) error {
			byTool := make(map[tools.ToolName][]string)
			var order []tools.ToolName
			for _, v := range vulns {
				name, err := registry.Resolve(string(v.Tool))
				if err != nil {
					report.Unresolved(string(v.Tool))
					continue
				}
				if name == v.Tool {
					continue
				}
				if _, ok := byTool[name]; !ok {
					order = append(order, name)
				}
				byTool[name] = append(byTool[name], v.ID)
				if !seen[v.ScanID] {
					seen[v.ScanID] = true
					affected = append(affected, v.ScanID)
				}
			}

			for _, name := range order {
				ids := byTool[name]
				err := tx.Model(&models.Vulnerability{}).Where("id IN ?", ids).Update("tool", string(name)).Error
				if err != nil {
					return fmt.Errorf("failed to rewrite vulnerabilities to %s: %w", name, err)
				}
				report.VulnerabilitiesUpdated(ids...)
			}
			return nil
		})
	return affected, res.Error
}

func recount(tx *gorm.DB, scanIDs []string, report *Report) error {
	for _, id := range scanIDs {
		var stored []models.Vulnerability
		if err := tx.Select("tool", "severity").Where("scan_id = ?", id).Find(&stored).Error; err != nil {
			return fmt.Errorf("failed to load vulnerabilities of scan %s: %w", id, err)
		}

		scan := models.Scan{ID: id}
		aggregate.Compute(stored).Apply(&scan)
		res := tx.Model(&models.Scan{ID: id}).
			Select("tool_counts", "issues_critical", "issues_high", "issues_medium", "issues_low", "issues_total").
			Updates(&scan)
		if res.Error != nil {
			return fmt.Errorf("failed to recount scan %s: %w", id, res.Error)
		}
		if res.RowsAffected > 0 {
			report.ScanUpdated(id)
		}
	}
	return nil
}

// canonicalize maps every resolvable name to its canonical form, keeping
// order and dropping duplicates the rewrite creates.
func canonicalize(registry *tools.Registry, names []string, report *Report) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		value := n
		if canonical, err := registry.Resolve(n); err == nil {
			value = string(canonical)
		} else {
			report.Unresolved(n)
		}
		if seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}
