package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scanhub/internal/models"
	"scanhub/pkg/adapters"
	"scanhub/pkg/engine"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/hooks"
	"scanhub/pkg/logger"
	"scanhub/pkg/normalizer"
	"scanhub/pkg/tools"
)

// ScanExecutor drives one scan from the queue to a terminal status.
type ScanExecutor struct {
	scanService *scanService
}

func newScanExecutor(s *scanService) *ScanExecutor {
	return &ScanExecutor{scanService: s}
}

// Execute runs in its own goroutine. ctx is cancelled by StopScan; status
// writes use a detached context so a stop never loses them.
func (e *ScanExecutor) Execute(ctx context.Context, scan *models.Scan, run *activeScan) {
	s := e.scanService
	scanID := scan.ID
	dbCtx := context.WithoutCancel(ctx)
	finalStatus := models.ScanStatusFailed
	var scanLogger *logger.ScanLogger

	s.Metrics.IncScansStarted(dbCtx)
	s.Metrics.AddActiveScans(dbCtx, 1)

	defer func() {
		if r := recover(); r != nil {
			panicMsg := fmt.Sprintf("panic in background scan: %v", r)
			s.logger.WithFields(logger.Fields{"scan_id": scanID, "panic": r}).Error(panicMsg)
			if scanLogger != nil {
				scanLogger.LogScanFailure("panic during scan execution", fmt.Errorf("%v", r))
			}
			finalStatus = e.fail(dbCtx, scanID, run, panicMsg, nil)
		}
		if scanLogger != nil {
			if err := scanLogger.Close(); err != nil {
				s.logger.WithFields(logger.Fields{"scan_id": scanID, "error": err}).Warn("Failed to close scan logger")
			}
		}

		s.Metrics.AddActiveScans(dbCtx, -1)
		s.Metrics.IncScansFinished(dbCtx, finalStatus.String())

		run.cancel()
		s.active.Delete(scanID)
		s.statusManager.Forget(scanID)
		close(run.done)
	}()

	var err error
	scanLogger, err = logger.NewScanLogger(scanID, scan.WorkspaceDir, s.logger.GetLevel(), s.logger.Out)
	if err != nil {
		s.logger.WithFields(logger.Fields{"scan_id": scanID, "error": err}).Error("Failed to create scan logger")
		finalStatus = e.fail(dbCtx, scanID, run, "failed to open scan log", nil)
		return
	}

	err = s.Queue.Execute(ctx, func() error {
		finalStatus = e.run(ctx, scan, run, scanLogger)
		return nil
	})
	if err != nil {
		// Stopped while queued; StopScan already persisted the status.
		finalStatus = models.ScanStatusStopped
		scanLogger.WithScan(scanID).Info("Scan stopped before leaving the queue")
		return
	}

	if finalStatus == models.ScanStatusFailed {
		e.runFailureHooks(dbCtx, scanID, scan.WorkspaceDir)
	}
}

// runFailureHooks lets hooks report a failed scan. Failed scans carry no
// vulnerabilities.
func (e *ScanExecutor) runFailureHooks(ctx context.Context, scanID, dir string) {
	s := e.scanService
	if len(s.Hooks) == 0 {
		return
	}
	failed, err := s.ScanDAO.GetScanByID(ctx, scanID)
	if err != nil || failed.Status != models.ScanStatusFailed {
		return
	}
	hooks.RunAll(ctx, s.logger, s.Hooks, hooks.HookContext{Scan: failed, OutputDir: dir})
}

func (e *ScanExecutor) run(ctx context.Context, scan *models.Scan, run *activeScan, sl *logger.ScanLogger) models.ScanStatus {
	s := e.scanService
	scanID := scan.ID
	dbCtx := context.WithoutCancel(ctx)

	if err := e.markRunning(dbCtx, scanID, run); err != nil {
		if run.stopping.Load() {
			return models.ScanStatusStopped
		}
		sl.LogScanFailure("could not start scan", err)
		return e.fail(dbCtx, scanID, run, "could not start scan: "+err.Error(), nil)
	}

	start := time.Now()
	defer func() {
		s.Metrics.ObserveScanDuration(dbCtx, time.Since(start))
	}()

	sl.WithFields(logger.Fields{
		"scan_id":   scanID,
		"scan_type": scan.ScanType,
		"requested": scan.RequestedTools,
	}).Info("Starting scan execution")

	jobs := e.resolve(scan.RequestedTools)

	var selected []string
	for _, job := range jobs {
		if job.Adapter != nil {
			selected = append(selected, string(job.Tool))
		}
	}
	if len(selected) == 0 {
		results := make([]models.ToolResult, len(jobs))
		for i, job := range jobs {
			results[i] = toolResult(engine.Outcome{Job: job, Err: job.Err}, normalizer.Result{})
		}
		reason := "none of the requested tools could be resolved"
		sl.LogScanFailure(reason, nil)
		return e.fail(dbCtx, scanID, run, reason, func(sc *models.Scan) {
			sc.ToolResults = results
		})
	}

	if !e.persistSelected(dbCtx, scanID, run, selected) {
		return models.ScanStatusStopped
	}

	tree := adapters.SourceTree{Root: sourceRoot(scan.WorkspaceDir)}
	for _, f := range scan.Files {
		tree.Files = append(tree.Files, f.Name)
	}

	total := len(jobs)
	finished := 0
	normalized := make(map[string]normalizer.Result, total)
	outcomes := s.Engine.Run(ctx, tree, jobs, run.gate, func(o engine.Outcome) {
		finished++
		label := toolLabel(o.Job)
		if o.Succeeded() {
			res := s.Normalizer.Normalize(o.Job.Tool, o.Raw)
			normalized[jobKey(o.Job)] = res
			s.Metrics.AddFindings(dbCtx, label, len(res.Vulnerabilities))
			s.Metrics.AddDroppedFindings(dbCtx, label, res.Dropped)
			s.Metrics.AddSeverityFallbacks(dbCtx, label, res.SeverityFallbacks)
		} else if !run.stopping.Load() {
			sl.LogError("engine", o.Err, logger.Fields{"tool": label})
		}
		e.reportProgress(dbCtx, scanID, run, finished, total, label)
	})

	if ctx.Err() != nil || run.stopping.Load() {
		sl.WithScan(scanID).Info("Scan stopped, discarding tool results")
		return models.ScanStatusStopped
	}

	results := make([]models.ToolResult, len(outcomes))
	batches := make([][]models.Vulnerability, 0, len(outcomes))
	failures := make(map[string]string)
	succeeded := 0
	for i, o := range outcomes {
		res := normalized[jobKey(o.Job)]
		results[i] = toolResult(o, res)
		if o.Succeeded() {
			succeeded++
			batches = append(batches, res.Vulnerabilities)
		} else {
			failures[toolLabel(o.Job)] = results[i].Error
		}
	}

	if succeeded == 0 {
		reason := summarizeFailures(results)
		sl.LogScanFailure(reason, nil)
		return e.fail(dbCtx, scanID, run, reason, func(sc *models.Scan) {
			sc.ToolResults = results
		})
	}

	// A scan paused after its last tool finished completes on resume.
	for {
		if err := run.gate.Wait(ctx); err != nil {
			return models.ScanStatusStopped
		}
		completed, status := e.complete(dbCtx, scanID, run, results, batches)
		if status == "" {
			continue
		}
		if status != models.ScanStatusCompleted {
			return status
		}

		sl.LogToolFailures(failures)
		sl.LogScanFinished(status.String(), completed.IssuesCounts.Total)

		var vulns []models.Vulnerability
		for _, batch := range batches {
			vulns = append(vulns, batch...)
		}
		hooks.RunAll(dbCtx, s.logger, s.Hooks, hooks.HookContext{
			Scan:            completed,
			Vulnerabilities: vulns,
			OutputDir:       scan.WorkspaceDir,
		})
		return status
	}
}

func (e *ScanExecutor) markRunning(ctx context.Context, scanID string, run *activeScan) error {
	s := e.scanService
	unlock := s.statusManager.Lock(scanID)
	defer unlock()

	if run.stopping.Load() {
		return context.Canceled
	}
	now := time.Now()
	_, err := s.statusManager.TransitionLocked(ctx, scanID, models.ScanStatusRunning, func(sc *models.Scan) {
		sc.StartTime = &now
		sc.Progress = 0
	})
	return err
}

// persistSelected records the canonical tools that will run. It reports
// false when the scan was stopped meanwhile.
func (e *ScanExecutor) persistSelected(ctx context.Context, scanID string, run *activeScan, selected []string) bool {
	s := e.scanService
	unlock := s.statusManager.Lock(scanID)
	defer unlock()

	if run.stopping.Load() {
		return false
	}
	if err := s.ScanDAO.UpdateScanFields(ctx, &models.Scan{ID: scanID, SelectedTools: selected}, "SelectedTools"); err != nil {
		s.logger.WithFields(logger.Fields{"scan_id": scanID, "error": err}).Warn("Failed to persist selected tools")
	}
	return true
}

// resolve turns requested identifiers into jobs, in request order. Spellings
// of one tool collapse into a single job; identifiers that do not resolve
// become jobs that fail without running.
func (e *ScanExecutor) resolve(requested []string) []engine.Job {
	s := e.scanService
	var jobs []engine.Job
	seenRaw := make(map[string]bool)
	seenTool := make(map[tools.ToolName]bool)

	for _, id := range requested {
		key := tools.NormalizeIdentifier(id)
		if seenRaw[key] {
			continue
		}
		seenRaw[key] = true

		name, err := s.Registry.Resolve(id)
		if err != nil {
			jobs = append(jobs, engine.Job{
				Requested: id,
				Err:       scanerrors.NewToolError(id, fmt.Errorf("%w: %w", scanerrors.ErrToolResolution, err)),
			})
			continue
		}
		if seenTool[name] {
			continue
		}
		seenTool[name] = true

		adapter, err := s.Factory.Adapter(name)
		if err != nil {
			var te *scanerrors.ToolError
			if !scanerrors.As(err, &te) {
				err = scanerrors.NewToolError(string(name), fmt.Errorf("%w: %v", scanerrors.ErrToolResolution, err))
			}
			jobs = append(jobs, engine.Job{Tool: name, Requested: id, Err: err})
			continue
		}
		jobs = append(jobs, engine.Job{Tool: name, Requested: id, Adapter: adapter})
	}
	return jobs
}

// reportProgress publishes progress at a bounded rate. Nothing is written
// while the scan is paused; ResumeScan flushes the latest value.
func (e *ScanExecutor) reportProgress(ctx context.Context, scanID string, run *activeScan, finished, total int, tool string) {
	s := e.scanService

	progress := finished * 100 / total
	if progress > 99 {
		progress = 99
	}
	run.setProgress(progress, tool)

	if !run.limiter.Allow() {
		return
	}

	unlock := s.statusManager.Lock(scanID)
	defer unlock()
	if run.stopping.Load() || run.gate.Paused() {
		return
	}
	update := &models.Scan{ID: scanID, Progress: progress, CurrentFile: tool}
	if err := s.ScanDAO.UpdateScanFields(ctx, update, "Progress", "CurrentFile"); err != nil {
		s.logger.WithFields(logger.Fields{"scan_id": scanID, "error": err}).Warn("Failed to update scan progress")
	}
}

// complete stores the results and marks the scan completed. An empty status
// means the scan was paused again and completion has to wait.
func (e *ScanExecutor) complete(ctx context.Context, scanID string, run *activeScan, results []models.ToolResult, batches [][]models.Vulnerability) (*models.Scan, models.ScanStatus) {
	s := e.scanService
	unlock := s.statusManager.Lock(scanID)
	defer unlock()

	if run.stopping.Load() {
		return nil, models.ScanStatusStopped
	}
	if run.gate.Paused() {
		return nil, ""
	}

	scan, err := s.ScanDAO.GetScanByID(ctx, scanID)
	if err == nil {
		err = scan.Status.ValidateTransition(models.ScanStatusCompleted)
	}
	if err != nil {
		s.logger.WithFields(logger.Fields{"scan_id": scanID, "error": err}).Error("Cannot complete scan")
		return nil, e.failLocked(ctx, scanID, "could not complete scan: "+err.Error(), nil)
	}

	end := time.Now()
	scan.Status = models.ScanStatusCompleted
	scan.Progress = 100
	scan.CurrentFile = ""
	scan.ToolResults = results
	scan.EndTime = &end
	if scan.StartTime != nil {
		scan.Duration = end.Sub(*scan.StartTime).Milliseconds()
	}

	if err := s.ScanDAO.CompleteScan(ctx, scan, batches); err != nil {
		s.logger.WithFields(logger.Fields{"scan_id": scanID, "error": err}).Error("Failed to store scan results")
		return nil, e.failLocked(ctx, scanID, "storage failure: "+err.Error(), func(sc *models.Scan) {
			sc.ToolResults = results
		})
	}

	s.logger.WithFields(logger.Fields{
		"scan_id":  scanID,
		"findings": scan.IssuesCounts.Total,
		"duration": scan.Duration,
	}).Info("Scan completed")
	return scan, models.ScanStatusCompleted
}

// fail marks the scan failed unless it was stopped meanwhile, and returns the
// resulting status.
func (e *ScanExecutor) fail(ctx context.Context, scanID string, run *activeScan, reason string, mutate func(*models.Scan)) models.ScanStatus {
	unlock := e.scanService.statusManager.Lock(scanID)
	defer unlock()

	if run.stopping.Load() {
		return models.ScanStatusStopped
	}
	return e.failLocked(ctx, scanID, reason, mutate)
}

func (e *ScanExecutor) failLocked(ctx context.Context, scanID, reason string, mutate func(*models.Scan)) models.ScanStatus {
	e.scanService.statusManager.MarkFailedWithReasonLocked(ctx, scanID, reason, func(sc *models.Scan) {
		sc.CurrentFile = ""
		if mutate != nil {
			mutate(sc)
		}
	})
	return models.ScanStatusFailed
}

func toolResult(o engine.Outcome, res normalizer.Result) models.ToolResult {
	tr := models.ToolResult{
		Tool:       toolLabel(o.Job),
		Requested:  o.Job.Requested,
		DurationMs: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		tr.Status = scanerrors.ToolCode(o.Err)
		tr.Error = o.Err.Error()
		return tr
	}
	tr.Status = models.ToolStatusSucceeded
	tr.Findings = len(res.Vulnerabilities)
	tr.Dropped = res.Dropped
	tr.SeverityFallbacks = res.SeverityFallbacks
	return tr
}

// toolLabel is the canonical name of a job, or the raw identifier when it
// did not resolve.
func toolLabel(job engine.Job) string {
	if job.Tool != "" {
		return string(job.Tool)
	}
	return job.Requested
}

func jobKey(job engine.Job) string {
	if job.Tool != "" {
		return string(job.Tool)
	}
	return "?" + tools.NormalizeIdentifier(job.Requested)
}

func summarizeFailures(results []models.ToolResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Tool, r.Status))
	}
	return "all tools failed (" + strings.Join(parts, ", ") + ")"
}
