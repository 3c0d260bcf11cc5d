package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrToolNotFound          = errors.New("tool not found")
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrToolResolution        = errors.New("tool could not be resolved")
	ErrToolExecution         = errors.New("tool execution failed")
	ErrToolTimeout           = errors.New("tool timed out")
	ErrToolCancelled         = errors.New("tool cancelled")
	ErrNormalization         = errors.New("finding could not be normalized")
	ErrStorage               = errors.New("storage failure")
	ErrMigration             = errors.New("migration failed")
	ErrScanNotFound          = errors.New("scan not found")
	ErrVulnerabilityNotFound = errors.New("vulnerability not found")
	ErrInvalidTransition     = errors.New("invalid scan status transition")
	ErrDiscordNotConfigured  = errors.New("discord client not configured")
)

// Codes reported in per-tool results.
const (
	CodeUnresolved = "unresolved"
	CodeFailed     = "failed"
	CodeTimeout    = "timeout"
	CodeCancelled  = "cancelled"
)

type ToolError struct {
	ToolName string
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.ToolName, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Code classifies the failure for per-tool results.
func (e *ToolError) Code() string {
	switch {
	case errors.Is(e.Err, ErrToolResolution), errors.Is(e.Err, ErrToolNotFound):
		return CodeUnresolved
	case errors.Is(e.Err, ErrToolTimeout):
		return CodeTimeout
	case errors.Is(e.Err, ErrToolCancelled):
		return CodeCancelled
	default:
		return CodeFailed
	}
}

func NewToolError(toolName string, err error) *ToolError {
	return &ToolError{
		ToolName: toolName,
		Err:      err,
	}
}

// ToolCode returns the per-tool failure code of err, or CodeFailed when err
// carries no ToolError.
func ToolCode(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Code()
	}
	return CodeFailed
}

type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value: %v): %s", e.Field, e.Value, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// MigrationError reports which records a failed migration had already
// rewritten before it was rolled back.
type MigrationError struct {
	ID                      string
	UpdatedScanIDs          []string
	UpdatedVulnerabilityIDs []string
	Err                     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %s failed: %v", e.ID, e.Err)
	if n := len(e.UpdatedScanIDs) + len(e.UpdatedVulnerabilityIDs); n > 0 {
		fmt.Fprintf(&b, " (rolled back %d scan and %d vulnerability rewrites)",
			len(e.UpdatedScanIDs), len(e.UpdatedVulnerabilityIDs))
	}
	return b.String()
}

func (e *MigrationError) Unwrap() []error {
	return []error{ErrMigration, e.Err}
}

// Is, As and New re-export the standard helpers so callers need a single
// errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
