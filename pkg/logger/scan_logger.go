package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ScanLogger mirrors a scan's log entries into scan.log and error.log inside
// the scan workspace.
type ScanLogger struct {
	*Logger
	scanID    string
	logFile   *os.File
	errorFile *os.File
	mu        sync.Mutex
}

func NewScanLogger(scanID, scanDir string, level logrus.Level, stdout io.Writer) (*ScanLogger, error) {
	baseLogger := NewLogger(level)

	logFile, err := os.OpenFile(filepath.Join(scanDir, "scan.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan log file: %w", err)
	}

	errorFile, err := os.OpenFile(filepath.Join(scanDir, "error.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to create error log file: %w", err)
	}

	fmt.Fprintf(logFile, "\n=== Scan Log Started: %s ===\nScan ID: %s\n\n", time.Now().Format(time.RFC3339), scanID)

	if stdout == nil {
		stdout = io.Discard
	}
	baseLogger.Logger.SetOutput(io.MultiWriter(stdout, logFile))

	return &ScanLogger{
		Logger:    baseLogger,
		scanID:    scanID,
		logFile:   logFile,
		errorFile: errorFile,
	}, nil
}

func (sl *ScanLogger) LogError(component string, err error, fields Fields) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if fields == nil {
		fields = Fields{}
	}
	fields["component"] = component
	fields["scan_id"] = sl.scanID

	sl.WithFields(fields).WithError(err).Error("Error occurred")

	fmt.Fprintf(sl.errorFile, "[%s] [%s] Error in %s: %v\n", time.Now().Format(time.RFC3339), sl.scanID, component, err)
}

// LogToolFailures records the tools that did not succeed in a scan that
// still completed.
func (sl *ScanLogger) LogToolFailures(failures map[string]string) {
	if len(failures) == 0 {
		return
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== SCAN COMPLETED WITH TOOL FAILURES: %s ===\n", time.Now().Format(time.RFC3339))
	for tool, reason := range failures {
		fmt.Fprintf(&b, "  - %s: %s\n", tool, reason)
	}
	sl.logFile.WriteString(b.String())
	sl.errorFile.WriteString(b.String())

	sl.WithFields(Fields{
		"scan_id":      sl.scanID,
		"failed_count": len(failures),
	}).Warn("Scan completed with some tool failures")
}

func (sl *ScanLogger) LogScanFailure(reason string, err error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	msg := fmt.Sprintf("\n=== SCAN FAILED: %s ===\nReason: %s\n", time.Now().Format(time.RFC3339), reason)
	if err != nil {
		msg += fmt.Sprintf("Error: %v\n", err)
	}
	sl.logFile.WriteString(msg)
	sl.errorFile.WriteString(msg)

	sl.WithFields(Fields{"scan_id": sl.scanID, "reason": reason}).WithError(err).Error("Scan failed")
}

func (sl *ScanLogger) LogScanFinished(status string, findings int) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	fmt.Fprintf(sl.logFile, "\n=== SCAN %s: %s (%d findings) ===\n",
		strings.ToUpper(status), time.Now().Format(time.RFC3339), findings)

	sl.WithFields(Fields{
		"scan_id":  sl.scanID,
		"status":   status,
		"findings": findings,
	}).Info("Scan finished")
}

func (sl *ScanLogger) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	var errs []error
	if sl.logFile != nil {
		fmt.Fprintf(sl.logFile, "\n=== Scan Log Ended: %s ===\n", time.Now().Format(time.RFC3339))
		if err := sl.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
		}
	}
	if sl.errorFile != nil {
		if err := sl.errorFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close error file: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing scan logger: %v", errs)
	}
	return nil
}
