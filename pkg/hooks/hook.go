// Package hooks holds actions run after a scan reaches a terminal state.
package hooks

import (
	"context"

	"scanhub/internal/models"
	"scanhub/pkg/logger"
)

// HookContext is what a completion hook sees of a finished scan.
type HookContext struct {
	Scan            *models.Scan
	Vulnerabilities []models.Vulnerability
	OutputDir       string
}

type CompletionHook interface {
	Name() string
	Execute(ctx context.Context, hc HookContext) error
}

// RunAll executes every hook. Hooks are best effort: a failure is logged and
// the remaining hooks still run.
func RunAll(ctx context.Context, log *logger.Logger, hooks []CompletionHook, hc HookContext) {
	for _, h := range hooks {
		if err := h.Execute(ctx, hc); err != nil {
			log.WithFields(logger.Fields{
				"hook":    h.Name(),
				"scan_id": hc.Scan.ID,
				"error":   err.Error(),
			}).Error("Completion hook failed")
		}
	}
}
