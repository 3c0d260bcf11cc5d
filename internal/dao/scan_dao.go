package dao

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"scanhub/internal/models"
	"scanhub/pkg/aggregate"
	scanerrors "scanhub/pkg/errors"
)

const insertBatchSize = 200

type ScanDAO interface {
	SaveScan(ctx context.Context, scan *models.Scan) error
	GetScanByID(ctx context.Context, id string) (*models.Scan, error)
	ListScans(ctx context.Context) ([]models.Scan, error)
	ListScansWithPagination(ctx context.Context, page, limit int) ([]models.Scan, int64, error)
	UpdateScan(ctx context.Context, scan *models.Scan) error
	// UpdateScanFields writes only the named fields of scan, zero values
	// included.
	UpdateScanFields(ctx context.Context, scan *models.Scan, fields ...string) error
	ListScansByStatus(ctx context.Context, statuses ...models.ScanStatus) ([]models.Scan, error)
	// CompleteScan stores every batch and the scan's final state in one
	// transaction, recomputing the cached counts from what was stored.
	CompleteScan(ctx context.Context, scan *models.Scan, batches [][]models.Vulnerability) error
	// RecomputeCounts rewrites the cached counts of a scan from its stored
	// vulnerabilities.
	RecomputeCounts(ctx context.Context, id string) (*models.Scan, error)
	DeleteScan(ctx context.Context, id string) error
}

type scanDAO struct {
	traced
}

func NewScanDAO(db *gorm.DB, tracer trace.Tracer) ScanDAO {
	return &scanDAO{traced: newTraced(db, tracer)}
}

func scanAttrs(id string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("scan_id", id)}
}

func (dao *scanDAO) SaveScan(ctx context.Context, scan *models.Scan) error {
	return dao.trace(ctx, "dao.scan.save", scanAttrs(scan.ID), func(ctx context.Context) error {
		return storageErr(dao.db.WithContext(ctx).Create(scan).Error, scanerrors.ErrScanNotFound)
	})
}

func (dao *scanDAO) UpdateScan(ctx context.Context, scan *models.Scan) error {
	return dao.trace(ctx, "dao.scan.update", scanAttrs(scan.ID), func(ctx context.Context) error {
		return storageErr(dao.db.WithContext(ctx).Save(scan).Error, scanerrors.ErrScanNotFound)
	})
}

func (dao *scanDAO) UpdateScanFields(ctx context.Context, scan *models.Scan, fields ...string) error {
	return dao.trace(ctx, "dao.scan.update_fields", scanAttrs(scan.ID), func(ctx context.Context) error {
		res := dao.db.WithContext(ctx).Model(&models.Scan{ID: scan.ID}).Select(fields).Updates(scan)
		if res.Error != nil {
			return storageErr(res.Error, scanerrors.ErrScanNotFound)
		}
		if res.RowsAffected == 0 {
			return scanerrors.ErrScanNotFound
		}
		return nil
	})
}

func (dao *scanDAO) GetScanByID(ctx context.Context, id string) (*models.Scan, error) {
	var scan models.Scan
	err := dao.trace(ctx, "dao.scan.get", scanAttrs(id), func(ctx context.Context) error {
		return storageErr(dao.db.WithContext(ctx).Where("id = ?", id).First(&scan).Error, scanerrors.ErrScanNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

func (dao *scanDAO) ListScans(ctx context.Context) ([]models.Scan, error) {
	var scans []models.Scan
	err := dao.trace(ctx, "dao.scan.list", nil, func(ctx context.Context) error {
		return storageErr(dao.db.WithContext(ctx).Order("created_at desc").Limit(50).Find(&scans).Error, nil)
	})
	if err != nil {
		return nil, err
	}
	return scans, nil
}

func (dao *scanDAO) ListScansByStatus(ctx context.Context, statuses ...models.ScanStatus) ([]models.Scan, error) {
	var scans []models.Scan
	err := dao.trace(ctx, "dao.scan.list_by_status", nil, func(ctx context.Context) error {
		return storageErr(dao.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at").Find(&scans).Error, nil)
	})
	if err != nil {
		return nil, err
	}
	return scans, nil
}

func (dao *scanDAO) ListScansWithPagination(ctx context.Context, page, limit int) ([]models.Scan, int64, error) {
	var scans []models.Scan
	var total int64

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	offset := (page - 1) * limit

	attrs := []attribute.KeyValue{attribute.Int("page", page), attribute.Int("limit", limit)}
	err := dao.trace(ctx, "dao.scan.list_page", attrs, func(ctx context.Context) error {
		db := dao.db.WithContext(ctx)
		if err := db.Model(&models.Scan{}).Count(&total).Error; err != nil {
			return storageErr(err, nil)
		}

		return storageErr(db.Order("created_at desc").
			Limit(limit).
			Offset(offset).
			Find(&scans).Error, nil)
	})
	if err != nil {
		return nil, 0, err
	}

	return scans, total, nil
}

func (dao *scanDAO) CompleteScan(ctx context.Context, scan *models.Scan, batches [][]models.Vulnerability) error {
	return dao.trace(ctx, "dao.scan.complete", scanAttrs(scan.ID), func(ctx context.Context) error {
		return storageErr(dao.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ordinal := 0
			for _, batch := range batches {
				if len(batch) == 0 {
					continue
				}
				for i := range batch {
					if batch[i].ID == "" {
						batch[i].ID = uuid.NewString()
					}
					batch[i].ScanID = scan.ID
					batch[i].Ordinal = ordinal
					ordinal++
				}
				if err := tx.CreateInBatches(batch, insertBatchSize).Error; err != nil {
					return err
				}
			}

			var stored []models.Vulnerability
			if err := tx.Where("scan_id = ?", scan.ID).Find(&stored).Error; err != nil {
				return err
			}
			aggregate.Compute(stored).Apply(scan)

			return tx.Save(scan).Error
		}), scanerrors.ErrScanNotFound)
	})
}

func (dao *scanDAO) RecomputeCounts(ctx context.Context, id string) (*models.Scan, error) {
	var scan models.Scan
	err := dao.trace(ctx, "dao.scan.recompute", scanAttrs(id), func(ctx context.Context) error {
		return storageErr(dao.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", id).First(&scan).Error; err != nil {
				return err
			}

			var stored []models.Vulnerability
			if err := tx.Where("scan_id = ?", id).Find(&stored).Error; err != nil {
				return err
			}
			aggregate.Compute(stored).Apply(&scan)

			return tx.Save(&scan).Error
		}), scanerrors.ErrScanNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

// DeleteScan removes a scan together with its vulnerabilities.
func (dao *scanDAO) DeleteScan(ctx context.Context, id string) error {
	return dao.trace(ctx, "dao.scan.delete", scanAttrs(id), func(ctx context.Context) error {
		return storageErr(dao.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("scan_id = ?", id).Delete(&models.Vulnerability{}).Error; err != nil {
				return err
			}
			result := tx.Where("id = ?", id).Delete(&models.Scan{})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
			return nil
		}), scanerrors.ErrScanNotFound)
	})
}
