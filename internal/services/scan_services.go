package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"scanhub/internal/dao"
	"scanhub/internal/models"
	"scanhub/internal/utils"
	"scanhub/pkg/adapters"
	"scanhub/pkg/engine"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/hooks"
	"scanhub/pkg/logger"
	"scanhub/pkg/metrics"
	"scanhub/pkg/normalizer"
	"scanhub/pkg/tools"
)

type ScanServiceMethods interface {
	// StartScan validates and persists a scan, then executes it in the
	// background. The handle's Done channel closes once the scan is terminal.
	StartScan(ctx context.Context, req StartScanRequest) (*ScanHandle, error)
	GetScan(ctx context.Context, id string) (*models.Scan, error)
	ListScans(ctx context.Context, page, limit int) ([]models.Scan, int64, error)
	DeleteScan(ctx context.Context, id string) error
	StopScan(ctx context.Context, id string) (*models.Scan, error)
	PauseScan(ctx context.Context, id string) (*models.Scan, error)
	ResumeScan(ctx context.Context, id string) (*models.Scan, error)
	RecomputeCounts(ctx context.Context, id string) (*models.Scan, error)
	// RecoverInterrupted fails scans left unfinished by a previous process.
	RecoverInterrupted(ctx context.Context) (int, error)
}

type StartScanRequest struct {
	Files         []FileInput `json:"files" validate:"required,min=1,dive"`
	SelectedTools []string    `json:"selectedTools" validate:"required,min=1,dive,required"`
	ScanName      string      `json:"scanName"`
	ScanType      string      `json:"scanType"`
}

type ScanHandle struct {
	ScanID string
	done   <-chan struct{}
}

func NewScanHandle(scanID string, done <-chan struct{}) *ScanHandle {
	return &ScanHandle{ScanID: scanID, done: done}
}

func (h *ScanHandle) Done() <-chan struct{} {
	return h.done
}

// ScanServiceDeps wires the scan service. Nil optional members get defaults.
type ScanServiceDeps struct {
	ScanDAO    dao.ScanDAO
	Registry   *tools.Registry
	Factory    adapters.Factory
	Engine     *engine.Engine
	Normalizer *normalizer.Normalizer
	Queue      *engine.ScanQueue
	Hooks      []hooks.CompletionHook
	Metrics    metrics.ScanMetrics
	Logger     *logger.Logger

	WorkspaceRoot     string
	UploadsRoot       string
	ProgressPerSecond float64
	// StopWait bounds how long StopScan waits for in-flight adapters.
	StopWait time.Duration
}

const defaultScanType = "custom"

// sourceDirName holds a scan's uploaded files inside its workspace; logs and
// exports sit next to it.
const sourceDirName = "src"

func sourceRoot(workspaceDir string) string {
	return filepath.Join(workspaceDir, sourceDirName)
}

// activeScan is the in-memory state of a scan that is queued or executing.
type activeScan struct {
	cancel   context.CancelFunc
	gate     *engine.Gate
	done     chan struct{}
	stopping atomic.Bool
	limiter  *rate.Limiter

	mu          sync.Mutex
	progress    int
	currentFile string
}

func (a *activeScan) setProgress(progress int, currentFile string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progress = progress
	a.currentFile = currentFile
}

func (a *activeScan) snapshot() (int, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.progress, a.currentFile
}

type scanService struct {
	ScanServiceDeps
	logger   *logger.Logger
	validate *validator.Validate

	statusManager *ScanStatusManager
	executor      *ScanExecutor
	scanMutexes   *sync.Map
	active        sync.Map
}

func NewScanService(deps ScanServiceDeps) ScanServiceMethods {
	return newScanService(deps)
}

func newScanService(deps ScanServiceDeps) *scanService {
	if deps.Logger == nil {
		deps.Logger = logger.NewLogger(logrus.InfoLevel)
	}
	if deps.Registry == nil {
		deps.Registry = tools.DefaultRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopMetrics()
	}
	if deps.Engine == nil {
		deps.Engine = engine.NewEngine(deps.Logger, engine.WithMetrics(deps.Metrics))
	}
	if deps.Queue == nil {
		deps.Queue = engine.GetGlobalQueue()
	}
	if deps.WorkspaceRoot == "" {
		deps.WorkspaceRoot = "./scans"
	}
	if deps.ProgressPerSecond <= 0 {
		deps.ProgressPerSecond = 2
	}
	if deps.StopWait <= 0 {
		deps.StopWait = 10 * time.Second
	}

	s := &scanService{
		ScanServiceDeps: deps,
		logger:          deps.Logger,
		validate:        validator.New(),
		scanMutexes:     &sync.Map{},
	}
	s.statusManager = newScanStatusManager(deps.ScanDAO, deps.Logger, s.scanMutexes)
	s.executor = newScanExecutor(s)
	return s
}

func (s *scanService) activeRun(id string) *activeScan {
	v, ok := s.active.Load(id)
	if !ok {
		return nil
	}
	return v.(*activeScan)
}

func (s *scanService) validateRequest(req StartScanRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", scanerrors.ErrInvalidRequest, err)
	}

	seen := make(map[string]bool, len(req.Files))
	for _, f := range req.Files {
		name, err := cleanFileName(f.Name)
		if err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate file %q", scanerrors.ErrInvalidRequest, name)
		}
		seen[name] = true

		if f.Content == nil && f.Path == "" {
			return fmt.Errorf("%w: file %q has neither content nor path", scanerrors.ErrInvalidRequest, name)
		}
	}
	return nil
}

func (s *scanService) StartScan(ctx context.Context, req StartScanRequest) (*ScanHandle, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now()

	scanDir, err := utils.CreateScanDirectory(s.WorkspaceRoot, id)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan workspace: %w", err)
	}

	ws, err := materialize(sourceRoot(scanDir), s.UploadsRoot, req.Files)
	if err != nil {
		if rmErr := os.RemoveAll(scanDir); rmErr != nil {
			s.logger.WithFields(logger.Fields{"dir": scanDir, "error": rmErr}).Warn("Failed to remove scan workspace")
		}
		return nil, err
	}

	name := strings.TrimSpace(req.ScanName)
	if name == "" {
		name = "Scan " + now.Format("2006-01-02 15:04:05")
	}
	scanType := req.ScanType
	if scanType == "" {
		scanType = defaultScanType
	}

	scan := &models.Scan{
		ID:             id,
		Name:           name,
		ScanType:       scanType,
		SelectedTools:  []string{},
		RequestedTools: append([]string(nil), req.SelectedTools...),
		Status:         models.ScanStatusPending,
		ToolCounts:     map[string]int{},
		ToolResults:    []models.ToolResult{},
		Files:          ws.Files,
		FilesScanned:   len(ws.Files),
		LinesOfCode:    ws.LinesOfCode,
		WorkspaceDir:   scanDir,
	}

	if err := s.ScanDAO.SaveScan(ctx, scan); err != nil {
		s.logger.WithFields(logger.Fields{"scan_id": id, "error": err}).Error("SaveScan failed")
		_ = os.RemoveAll(scanDir)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(engine.WithScanID(context.Background(), id))
	run := &activeScan{
		cancel:  cancel,
		gate:    engine.NewGate(),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(s.ProgressPerSecond), 1),
	}
	s.active.Store(id, run)

	s.logger.WithFields(logger.Fields{
		"scan_id": id,
		"tools":   req.SelectedTools,
		"files":   len(ws.Files),
	}).Info("Scan created")

	go s.executor.Execute(runCtx, scan, run)

	return NewScanHandle(id, run.done), nil
}

func (s *scanService) GetScan(ctx context.Context, id string) (*models.Scan, error) {
	return s.ScanDAO.GetScanByID(ctx, id)
}

func (s *scanService) ListScans(ctx context.Context, page, limit int) ([]models.Scan, int64, error) {
	return s.ScanDAO.ListScansWithPagination(ctx, page, limit)
}

// DeleteScan removes a finished scan, its vulnerabilities and its workspace.
func (s *scanService) DeleteScan(ctx context.Context, id string) error {
	unlock := s.statusManager.Lock(id)
	defer unlock()

	scan, err := s.ScanDAO.GetScanByID(ctx, id)
	if err != nil {
		return err
	}
	if !scan.Status.IsTerminal() {
		return fmt.Errorf("%w: scan %s is %s, stop it first", scanerrors.ErrInvalidTransition, id, scan.Status)
	}

	if err := s.ScanDAO.DeleteScan(ctx, id); err != nil {
		return err
	}

	if scan.WorkspaceDir != "" {
		if err := os.RemoveAll(scan.WorkspaceDir); err != nil {
			s.logger.WithFields(logger.Fields{"scan_id": id, "error": err}).Warn("Failed to remove scan workspace")
		}
	}
	return nil
}

// StopScan cancels a scan's adapters, discards their partial results and
// marks it stopped. It waits a bounded time for in-flight adapters.
func (s *scanService) StopScan(ctx context.Context, id string) (*models.Scan, error) {
	unlock := s.statusManager.Lock(id)
	run := s.activeRun(id)

	scan, err := s.statusManager.TransitionLocked(ctx, id, models.ScanStatusStopped, func(scan *models.Scan) {
		scan.Progress = 0
		scan.CurrentFile = ""
		if run != nil {
			run.stopping.Store(true)
			run.cancel()
		}
	})
	unlock()
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{"scan_id": id}).Info("Scan stopped")

	if run != nil {
		select {
		case <-run.done:
		case <-time.After(s.StopWait):
			s.logger.WithFields(logger.Fields{"scan_id": id}).Warn("Adapters still running after stop")
		case <-ctx.Done():
		}
	}
	return scan, nil
}

func (s *scanService) PauseScan(ctx context.Context, id string) (*models.Scan, error) {
	unlock := s.statusManager.Lock(id)
	defer unlock()

	run := s.activeRun(id)
	if run == nil {
		return nil, s.notExecuting(ctx, id, models.ScanStatusPaused)
	}

	scan, err := s.statusManager.TransitionLocked(ctx, id, models.ScanStatusPaused, nil)
	if err != nil {
		return nil, err
	}
	run.gate.Pause()

	s.logger.WithFields(logger.Fields{"scan_id": id}).Info("Scan paused")
	return scan, nil
}

func (s *scanService) ResumeScan(ctx context.Context, id string) (*models.Scan, error) {
	unlock := s.statusManager.Lock(id)
	defer unlock()

	run := s.activeRun(id)
	if run == nil {
		return nil, s.notExecuting(ctx, id, models.ScanStatusRunning)
	}

	current, err := s.ScanDAO.GetScanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.ScanStatusPaused {
		return nil, fmt.Errorf("%w: from %s to %s", scanerrors.ErrInvalidTransition, current.Status, models.ScanStatusRunning)
	}

	progress, currentFile := run.snapshot()
	scan, err := s.statusManager.TransitionLocked(ctx, id, models.ScanStatusRunning, func(scan *models.Scan) {
		scan.Progress = progress
		scan.CurrentFile = currentFile
	})
	if err != nil {
		return nil, err
	}
	run.gate.Resume()

	s.logger.WithFields(logger.Fields{"scan_id": id, "progress": progress}).Info("Scan resumed")
	return scan, nil
}

// notExecuting reports why a scan without in-memory state cannot change.
func (s *scanService) notExecuting(ctx context.Context, id string, target models.ScanStatus) error {
	scan, err := s.ScanDAO.GetScanByID(ctx, id)
	if err != nil {
		return err
	}
	if err := scan.Status.ValidateTransition(target); err != nil {
		return err
	}
	return fmt.Errorf("%w: scan %s is not executing", scanerrors.ErrInvalidTransition, id)
}

func (s *scanService) RecomputeCounts(ctx context.Context, id string) (*models.Scan, error) {
	unlock := s.statusManager.Lock(id)
	defer unlock()
	return s.ScanDAO.RecomputeCounts(ctx, id)
}

func (s *scanService) RecoverInterrupted(ctx context.Context) (int, error) {
	scans, err := s.ScanDAO.ListScansByStatus(ctx, models.ScanStatusPending, models.ScanStatusRunning, models.ScanStatusPaused)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, scan := range scans {
		if s.activeRun(scan.ID) != nil {
			continue
		}
		unlock := s.statusManager.Lock(scan.ID)
		s.statusManager.MarkFailedWithReasonLocked(ctx, scan.ID, "Scan interrupted by a service restart", nil)
		unlock()
		recovered++
	}
	return recovered, nil
}
