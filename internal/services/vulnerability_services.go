package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/moznion/go-optional"

	"scanhub/internal/dao"
	"scanhub/internal/models"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
	"scanhub/pkg/snippet"
	"scanhub/pkg/taxonomy"
)

type VulnerabilityServiceMethods interface {
	// ListIssues returns a scan's vulnerabilities in stored order, optionally
	// filtered by severity. An empty severity means all.
	ListIssues(ctx context.Context, scanID, severity string) ([]models.Vulnerability, error)
	ListWithSnippets(ctx context.Context, scanID string) ([]VulnerabilityWithSnippet, error)
	GetVulnerability(ctx context.Context, id string) (*VulnerabilityDetail, error)
	UpdateStatus(ctx context.Context, id, status string) (*models.Vulnerability, error)
}

type VulnerabilityWithSnippet struct {
	models.Vulnerability
	Snippet snippet.Snippet `json:"snippet"`
}

type VulnerabilityDetail struct {
	models.Vulnerability
	CodeSnippet snippet.Snippet `json:"codeSnippet"`
}

type vulnerabilityService struct {
	scanDao   dao.ScanDAO
	vulnDao   dao.VulnerabilityDAO
	extractor *snippet.Extractor
	logger    *logger.Logger
}

func NewVulnerabilityService(scanDao dao.ScanDAO, vulnDao dao.VulnerabilityDAO, extractor *snippet.Extractor, log *logger.Logger) VulnerabilityServiceMethods {
	if extractor == nil {
		extractor = snippet.NewExtractor(snippet.DefaultWindow, log)
	}
	return &vulnerabilityService{
		scanDao:   scanDao,
		vulnDao:   vulnDao,
		extractor: extractor,
		logger:    log,
	}
}

func (s *vulnerabilityService) ListIssues(ctx context.Context, scanID, severity string) ([]models.Vulnerability, error) {
	filter := optional.None[taxonomy.Severity]()
	if severity = strings.TrimSpace(severity); severity != "" {
		sev, err := taxonomy.ParseSeverity(severity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", scanerrors.ErrInvalidRequest, err)
		}
		filter = optional.Some(sev)
	}

	if _, err := s.scanDao.GetScanByID(ctx, scanID); err != nil {
		return nil, err
	}
	return s.vulnDao.ListByScan(ctx, scanID, filter)
}

func (s *vulnerabilityService) ListWithSnippets(ctx context.Context, scanID string) ([]VulnerabilityWithSnippet, error) {
	scan, err := s.scanDao.GetScanByID(ctx, scanID)
	if err != nil {
		return nil, err
	}
	vulns, err := s.vulnDao.ListByScan(ctx, scanID, optional.None[taxonomy.Severity]())
	if err != nil {
		return nil, err
	}

	root := scanSourceRoot(scan)
	out := make([]VulnerabilityWithSnippet, 0, len(vulns))
	for _, v := range vulns {
		out = append(out, VulnerabilityWithSnippet{
			Vulnerability: v,
			Snippet:       s.extractor.Extract(root, v.Location.File, v.Location.Line),
		})
	}
	return out, nil
}

// GetVulnerability attaches the source lines around the finding. A missing
// source file yields an unavailable snippet, not an error.
func (s *vulnerabilityService) GetVulnerability(ctx context.Context, id string) (*VulnerabilityDetail, error) {
	v, err := s.vulnDao.GetVulnerability(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &VulnerabilityDetail{Vulnerability: *v, CodeSnippet: snippet.Unavailable()}
	scan, err := s.scanDao.GetScanByID(ctx, v.ScanID)
	if err != nil {
		s.logger.WithFields(logger.Fields{
			"vulnerability_id": id,
			"scan_id":          v.ScanID,
			"error":            err,
		}).Warn("Scan of vulnerability not found")
		return detail, nil
	}

	detail.CodeSnippet = s.extractor.Extract(scanSourceRoot(scan), v.Location.File, v.Location.Line)
	return detail, nil
}

func (s *vulnerabilityService) UpdateStatus(ctx context.Context, id, status string) (*models.Vulnerability, error) {
	ts := taxonomy.TriageStatus(strings.ToLower(strings.TrimSpace(status)))
	if !ts.IsValid() {
		return nil, fmt.Errorf("%w: unknown triage status %q", scanerrors.ErrInvalidRequest, status)
	}
	return s.vulnDao.UpdateStatus(ctx, id, ts)
}

func scanSourceRoot(scan *models.Scan) string {
	if scan.WorkspaceDir == "" {
		return ""
	}
	return sourceRoot(scan.WorkspaceDir)
}
