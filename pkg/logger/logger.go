// Package logger provides structured logging for scanhub
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Fields represents structured log fields
type Fields map[string]interface{}

type ctxKey string

// RequestIDKey carries the HTTP request id through contexts.
const RequestIDKey ctxKey = "request_id"

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new structured logger
func NewLogger(level logrus.Level) *Logger {
	logger := logrus.New()
	logger.SetLevel(level)

	// JSON in production, text everywhere else
	if os.Getenv("ENV") == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	return &Logger{Logger: logger}
}

// NewNopLogger returns a logger that discards everything. Used by tests.
func NewNopLogger() *Logger {
	l := NewLogger(logrus.PanicLevel)
	l.SetOutput(io.Discard)
	return l
}

// ParseLevel maps a config string to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// WithContext adds context-specific fields to the logger
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithContext(ctx)
	if reqID := ctx.Value(RequestIDKey); reqID != nil {
		entry = entry.WithField("request_id", reqID)
	}
	return entry
}

// WithTool adds tool-specific fields to the logger
func (l *Logger) WithTool(toolName string) *logrus.Entry {
	return l.Logger.WithField("tool_name", toolName)
}

// WithScan tags the entry with a scan id
func (l *Logger) WithScan(scanID string) *logrus.Entry {
	return l.Logger.WithField("scan_id", scanID)
}

// WithError adds error context to the logger
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}

// LogToolExecution logs the start and end of one adapter run
func (l *Logger) LogToolExecution(scanID, toolName string, fn func() error) error {
	start := time.Now()

	l.WithFields(Fields{
		"scan_id":   scanID,
		"tool_name": toolName,
		"action":    "start",
	}).Info("Tool execution started")

	err := fn()

	fields := Fields{
		"scan_id":   scanID,
		"tool_name": toolName,
		"action":    "complete",
		"duration":  time.Since(start).String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.WithFields(fields).Error("Tool execution failed")
	} else {
		l.WithFields(fields).Info("Tool execution completed successfully")
	}

	return err
}

// Default logger instance
var defaultLogger = NewLogger(logrus.InfoLevel)

// Default returns the package level logger.
func Default() *Logger {
	return defaultLogger
}

// SetLevel sets the log level for the default logger
func SetLevel(level logrus.Level) {
	defaultLogger.SetLevel(level)
}
