package models

import (
	"fmt"
	"time"

	scanerrors "scanhub/pkg/errors"
)

// ScanStatus is the lifecycle state of a scan.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusPaused    ScanStatus = "paused"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
	ScanStatusStopped   ScanStatus = "stopped"
)

func (s ScanStatus) String() string { return string(s) }

// IsTerminal reports whether no further transition is possible.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed || s == ScanStatusStopped
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s ScanStatus) ValidateTransition(target ScanStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("%w: from %s to %s", scanerrors.ErrInvalidTransition, s, target)
	}
	return nil
}

func (s ScanStatus) isValidTransition(target ScanStatus) bool {
	switch s {
	case ScanStatusPending:
		return target == ScanStatusRunning || target == ScanStatusFailed || target == ScanStatusStopped
	case ScanStatusRunning:
		return target == ScanStatusPaused || target == ScanStatusCompleted ||
			target == ScanStatusFailed || target == ScanStatusStopped
	case ScanStatusPaused:
		// Completion waits for resume, so paused never goes straight to completed.
		return target == ScanStatusRunning || target == ScanStatusFailed || target == ScanStatusStopped
	default:
		return false
	}
}

// IssuesCounts is a cached recomputation over a scan's vulnerabilities.
type IssuesCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

type FileDescriptor struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ToolResult is the per-tool outcome of one scan.
type ToolResult struct {
	Tool              string `json:"tool"`
	Requested         string `json:"requested"`
	Status            string `json:"status"`
	Error             string `json:"error,omitempty"`
	Findings          int    `json:"findings"`
	Dropped           int    `json:"dropped"`
	SeverityFallbacks int    `json:"severityFallbacks"`
	DurationMs        int64  `json:"durationMs"`
}

// Tool result statuses besides the failure codes of pkg/errors.
const ToolStatusSucceeded = "succeeded"

type Scan struct {
	ID             string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name           string           `json:"name"`
	ScanType       string           `json:"scanType"`
	SelectedTools  []string         `gorm:"serializer:json" json:"selectedTools"`
	RequestedTools []string         `gorm:"serializer:json" json:"requestedTools"`
	Status         ScanStatus       `gorm:"type:varchar(16);index" json:"status"`
	Progress       int              `json:"progress"`
	CurrentFile    string           `json:"currentFile"`
	IssuesCounts   IssuesCounts     `gorm:"embedded;embeddedPrefix:issues_" json:"issuesCounts"`
	ToolCounts     map[string]int   `gorm:"serializer:json" json:"toolCounts"`
	ToolResults    []ToolResult     `gorm:"serializer:json" json:"toolResults"`
	FilesScanned   int              `json:"filesScanned"`
	LinesOfCode    int              `json:"linesOfCode"`
	StartTime      *time.Time       `json:"startTime"`
	EndTime        *time.Time       `json:"endTime"`
	Duration       int64            `json:"duration"`
	Files          []FileDescriptor `gorm:"serializer:json" json:"files"`
	ErrorMessage   string           `json:"errorMessage,omitempty"`
	WorkspaceDir   string           `json:"-"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}
