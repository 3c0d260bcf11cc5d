package handlers

import (
	"scanhub/internal/models"
)

type DataResponse struct {
	Data any `json:"data"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

type StartScanResponse struct {
	ScanID      string                 `json:"scanId"`
	Status      models.ScanStatus      `json:"status"`
	Results     []models.Vulnerability `json:"results"`
	IssuesCount models.IssuesCounts    `json:"issuesCount"`
	ToolResults []models.ToolResult    `json:"toolResults"`
}

type ScanListResponse struct {
	Scans []models.Scan `json:"scans"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type IssuesResponse struct {
	Issues []models.Vulnerability `json:"issues"`
}

type SnippetListResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
