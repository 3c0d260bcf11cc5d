package dao

import (
	"context"

	optional "github.com/moznion/go-optional"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"scanhub/internal/models"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/taxonomy"
)

type VulnerabilityDAO interface {
	// ListByScan returns a scan's vulnerabilities in the order they were
	// reported, optionally only those of one severity.
	ListByScan(ctx context.Context, scanID string, severity optional.Option[taxonomy.Severity]) ([]models.Vulnerability, error)
	GetVulnerability(ctx context.Context, id string) (*models.Vulnerability, error)
	UpdateStatus(ctx context.Context, id string, status taxonomy.TriageStatus) (*models.Vulnerability, error)
}

type vulnerabilityDAO struct {
	traced
}

func NewVulnerabilityDAO(db *gorm.DB, tracer trace.Tracer) VulnerabilityDAO {
	return &vulnerabilityDAO{traced: newTraced(db, tracer)}
}

func (dao *vulnerabilityDAO) ListByScan(ctx context.Context, scanID string, severity optional.Option[taxonomy.Severity]) ([]models.Vulnerability, error) {
	var vulns []models.Vulnerability
	err := dao.trace(ctx, "dao.vulnerability.list", scanAttrs(scanID), func(ctx context.Context) error {
		q := dao.db.WithContext(ctx).Where("scan_id = ?", scanID)
		if severity.IsSome() {
			q = q.Where("severity = ?", severity.Unwrap())
		}
		return storageErr(q.Order("ordinal, id").Find(&vulns).Error, nil)
	})
	if err != nil {
		return nil, err
	}
	return vulns, nil
}

func (dao *vulnerabilityDAO) GetVulnerability(ctx context.Context, id string) (*models.Vulnerability, error) {
	var vuln models.Vulnerability
	attrs := []attribute.KeyValue{attribute.String("vulnerability_id", id)}
	err := dao.trace(ctx, "dao.vulnerability.get", attrs, func(ctx context.Context) error {
		return storageErr(dao.db.WithContext(ctx).Where("id = ?", id).First(&vuln).Error, scanerrors.ErrVulnerabilityNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &vuln, nil
}

func (dao *vulnerabilityDAO) UpdateStatus(ctx context.Context, id string, status taxonomy.TriageStatus) (*models.Vulnerability, error) {
	var vuln models.Vulnerability
	attrs := []attribute.KeyValue{
		attribute.String("vulnerability_id", id),
		attribute.String("status", string(status)),
	}
	err := dao.trace(ctx, "dao.vulnerability.update_status", attrs, func(ctx context.Context) error {
		return storageErr(dao.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", id).First(&vuln).Error; err != nil {
				return err
			}
			vuln.Status = status
			return tx.Model(&vuln).Update("status", status).Error
		}), scanerrors.ErrVulnerabilityNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &vuln, nil
}
