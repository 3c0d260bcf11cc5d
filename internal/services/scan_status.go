package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scanhub/internal/dao"
	"scanhub/internal/models"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
)

// ScanStatusManager applies validated lifecycle transitions. Transitions of
// one scan are serialized by a per-scan mutex.
type ScanStatusManager struct {
	scanDao     dao.ScanDAO
	logger      *logger.Logger
	scanMutexes *sync.Map
}

func newScanStatusManager(scanDao dao.ScanDAO, logger *logger.Logger, scanMutexes *sync.Map) *ScanStatusManager {
	return &ScanStatusManager{
		scanDao:     scanDao,
		logger:      logger,
		scanMutexes: scanMutexes,
	}
}

func (m *ScanStatusManager) getScanMutex(scanID string) *sync.Mutex {
	value, _ := m.scanMutexes.LoadOrStore(scanID, &sync.Mutex{})
	return value.(*sync.Mutex)
}

// Lock acquires the scan's mutex and returns its release.
func (m *ScanStatusManager) Lock(scanID string) func() {
	mu := m.getScanMutex(scanID)
	mu.Lock()
	return mu.Unlock
}

// Forget drops the mutex of a scan that no longer executes.
func (m *ScanStatusManager) Forget(scanID string) {
	m.scanMutexes.Delete(scanID)
}

// TransitionLocked moves a scan to target and lets mutate adjust the record
// before it is saved. The caller holds the scan's lock.
func (m *ScanStatusManager) TransitionLocked(ctx context.Context, scanID string, target models.ScanStatus, mutate func(*models.Scan)) (*models.Scan, error) {
	scan, err := m.scanDao.GetScanByID(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if err := scan.Status.ValidateTransition(target); err != nil {
		return scan, err
	}

	scan.Status = target
	if target.IsTerminal() {
		end := time.Now()
		scan.EndTime = &end
		if scan.StartTime != nil {
			scan.Duration = end.Sub(*scan.StartTime).Milliseconds()
		}
	}
	if mutate != nil {
		mutate(scan)
	}

	if err := m.scanDao.UpdateScan(ctx, scan); err != nil {
		return nil, fmt.Errorf("persist status %s: %w", target, err)
	}

	m.logger.WithFields(logger.Fields{
		"scan_id": scanID,
		"status":  target,
	}).Debug("Scan status updated")
	return scan, nil
}

// MarkFailedWithReasonLocked fails a scan with a human readable reason. A scan
// that already reached a terminal state is left alone.
func (m *ScanStatusManager) MarkFailedWithReasonLocked(ctx context.Context, scanID, reason string, mutate func(*models.Scan)) {
	_, err := m.TransitionLocked(ctx, scanID, models.ScanStatusFailed, func(s *models.Scan) {
		s.ErrorMessage = reason
		if mutate != nil {
			mutate(s)
		}
	})
	if err != nil {
		if scanerrors.Is(err, scanerrors.ErrInvalidTransition) {
			m.logger.WithFields(logger.Fields{"scan_id": scanID, "reason": reason}).Warn("Scan already finished, not marking failed")
			return
		}
		m.logger.WithFields(logger.Fields{"scan_id": scanID, "error": err}).Error("Failed to persist failed scan status")
		return
	}

	m.logger.WithFields(logger.Fields{
		"scan_id": scanID,
		"reason":  reason,
	}).Error("Scan marked as failed")
}
