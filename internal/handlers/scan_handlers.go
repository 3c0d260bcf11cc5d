package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scanhub/internal/models"
	"scanhub/internal/services"
	"scanhub/pkg/logger"
)

type ScanHandler struct {
	scanService services.ScanServiceMethods
	vulnService services.VulnerabilityServiceMethods
	logger      *logger.Logger
}

func NewScanHandler(scanService services.ScanServiceMethods, vulnService services.VulnerabilityServiceMethods, log *logger.Logger) *ScanHandler {
	return &ScanHandler{scanService: scanService, vulnService: vulnService, logger: log}
}

// StartScan creates a scan. Unless async=true it blocks until the scan is
// terminal and answers with its findings.
func (h *ScanHandler) StartScan(c *gin.Context) {
	var req services.StartScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithFields(logger.Fields{"error": err}).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload"})
		return
	}

	ctx := c.Request.Context()
	handle, err := h.scanService.StartScan(ctx, req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to start scan")
		return
	}

	if c.Query("async") == "true" {
		c.JSON(http.StatusAccepted, DataResponse{Data: StartScanResponse{
			ScanID:      handle.ScanID,
			Status:      models.ScanStatusPending,
			Results:     []models.Vulnerability{},
			ToolResults: []models.ToolResult{},
		}})
		return
	}

	select {
	case <-handle.Done():
	case <-ctx.Done():
		h.logger.WithFields(logger.Fields{"scan_id": handle.ScanID}).Info("Client left before the scan finished")
		return
	}

	scan, err := h.scanService.GetScan(ctx, handle.ScanID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load scan")
		return
	}
	if scan.Status == models.ScanStatusFailed {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Scan failed: " + scan.ErrorMessage})
		return
	}

	issues, err := h.vulnService.ListIssues(ctx, scan.ID, "")
	if err != nil {
		respondError(c, h.logger, err, "Failed to load scan results")
		return
	}

	c.JSON(http.StatusOK, DataResponse{Data: StartScanResponse{
		ScanID:      scan.ID,
		Status:      scan.Status,
		Results:     nonNil(issues),
		IssuesCount: scan.IssuesCounts,
		ToolResults: scan.ToolResults,
	}})
}

func (h *ScanHandler) ListScans(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid page"})
		return
	}
	limit, err := queryInt(c, "limit", 10)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid limit"})
		return
	}

	scans, total, err := h.scanService.ListScans(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list scans")
		return
	}
	if scans == nil {
		scans = []models.Scan{}
	}
	c.JSON(http.StatusOK, DataResponse{Data: ScanListResponse{Scans: scans, Total: total, Page: page, Limit: limit}})
}

func (h *ScanHandler) GetScan(c *gin.Context) {
	scan, err := h.scanService.GetScan(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get scan")
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: scan})
}

func (h *ScanHandler) DeleteScan(c *gin.Context) {
	if err := h.scanService.DeleteScan(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err, "Failed to delete scan")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ScanHandler) StopScan(c *gin.Context) {
	h.transition(c, h.scanService.StopScan, "Failed to stop scan")
}

func (h *ScanHandler) PauseScan(c *gin.Context) {
	h.transition(c, h.scanService.PauseScan, "Failed to pause scan")
}

func (h *ScanHandler) ResumeScan(c *gin.Context) {
	h.transition(c, h.scanService.ResumeScan, "Failed to resume scan")
}

func (h *ScanHandler) RecomputeCounts(c *gin.Context) {
	h.transition(c, h.scanService.RecomputeCounts, "Failed to recompute counts")
}

type scanOp func(ctx context.Context, id string) (*models.Scan, error)

func (h *ScanHandler) transition(c *gin.Context, op scanOp, fallback string) {
	scan, err := op(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, fallback)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: scan})
}

func (h *ScanHandler) ListIssues(c *gin.Context) {
	issues, err := h.vulnService.ListIssues(c.Request.Context(), c.Param("id"), c.Query("severity"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to list issues")
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: IssuesResponse{Issues: nonNil(issues)}})
}

func (h *ScanHandler) ListWithSnippets(c *gin.Context) {
	vulns, err := h.vulnService.ListWithSnippets(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to list vulnerabilities")
		return
	}
	if vulns == nil {
		vulns = []services.VulnerabilityWithSnippet{}
	}
	c.JSON(http.StatusOK, SnippetListResponse{Success: true, Data: vulns})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func nonNil(v []models.Vulnerability) []models.Vulnerability {
	if v == nil {
		return []models.Vulnerability{}
	}
	return v
}
