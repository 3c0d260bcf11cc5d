// Package testutil provides testing utilities for the scanhub packages
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"scanhub/internal/models"
	"scanhub/pkg/adapters"
	"scanhub/pkg/parsers"
	"scanhub/pkg/runner"
	"scanhub/pkg/tools"
)

// MockCommandRunner implements runner.CommandRunner for testing
type MockCommandRunner struct {
	mu        sync.RWMutex
	commands  []runner.Command
	responses map[string]CommandResponse
}

type CommandResponse struct {
	Result runner.Result
	Error  error
	Delay  time.Duration
}

func NewMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{
		responses: make(map[string]CommandResponse),
	}
}

// Run records cmd and replays the response registered for its name. A delay
// is interrupted by ctx, like a killed process.
func (m *MockCommandRunner) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	m.mu.Lock()
	m.commands = append(m.commands, cmd)
	response, exists := m.responses[cmd.Name]
	m.mu.Unlock()

	if !exists {
		return runner.Result{}, nil
	}
	if response.Delay > 0 {
		select {
		case <-time.After(response.Delay):
		case <-ctx.Done():
			return runner.Result{}, ctx.Err()
		}
	}
	return response.Result, response.Error
}

func (m *MockCommandRunner) SetResponse(command string, response CommandResponse) {
	m.mu.Lock()
	m.responses[command] = response
	m.mu.Unlock()
}

func (m *MockCommandRunner) GetExecutedCommands() []runner.Command {
	m.mu.RLock()
	defer m.mu.RUnlock()

	commands := make([]runner.Command, len(m.commands))
	copy(commands, m.commands)
	return commands
}

// FakeAdapter returns canned findings after an optional delay.
type FakeAdapter struct {
	Name     tools.ToolName
	Findings []parsers.RawFinding
	Err      error
	Delay    time.Duration

	mu    sync.Mutex
	calls int
}

func (f *FakeAdapter) Tool() tools.ToolName { return f.Name }

func (f *FakeAdapter) Run(ctx context.Context, tree adapters.SourceTree) (parsers.RawFindings, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return parsers.RawFindings{Tool: f.Name}, ctx.Err()
		}
	}
	if f.Err != nil {
		return parsers.RawFindings{Tool: f.Name}, f.Err
	}
	raw := parsers.NewRawFindings(f.Name, f.Findings)
	raw.Root = tree.Root
	return raw, nil
}

func (f *FakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeFactory hands out registered adapters by tool name.
type FakeFactory map[tools.ToolName]adapters.Adapter

func (f FakeFactory) Adapter(name tools.ToolName) (adapters.Adapter, error) {
	a, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("no fake adapter for %s", name)
	}
	return a, nil
}

// NewTestDB opens a private in-memory sqlite database with the scanhub schema.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// A single connection keeps concurrent writers from hitting SQLITE_LOCKED.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateTestFile creates a test file with the given content
func CreateTestFile(t *testing.T, dir, filename, content string) string {
	t.Helper()

	filePath := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", filePath, err)
	}
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create test file %s: %v", filePath, err)
	}

	return filePath
}

// WithTimeout creates a context with timeout for tests
func WithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), timeout)
}
