package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scanhub/internal/models"
	"scanhub/internal/services"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
	"scanhub/pkg/taxonomy"
	"scanhub/pkg/tools"
)

type MockScanService struct {
	mock.Mock
}

func (m *MockScanService) StartScan(ctx context.Context, req services.StartScanRequest) (*services.ScanHandle, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ScanHandle), args.Error(1)
}

func (m *MockScanService) GetScan(ctx context.Context, id string) (*models.Scan, error) {
	return m.scanResult(m.Called(ctx, id))
}

func (m *MockScanService) ListScans(ctx context.Context, page, limit int) ([]models.Scan, int64, error) {
	args := m.Called(ctx, page, limit)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Scan), args.Get(1).(int64), args.Error(2)
}

func (m *MockScanService) DeleteScan(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockScanService) StopScan(ctx context.Context, id string) (*models.Scan, error) {
	return m.scanResult(m.Called(ctx, id))
}

func (m *MockScanService) PauseScan(ctx context.Context, id string) (*models.Scan, error) {
	return m.scanResult(m.Called(ctx, id))
}

func (m *MockScanService) ResumeScan(ctx context.Context, id string) (*models.Scan, error) {
	return m.scanResult(m.Called(ctx, id))
}

func (m *MockScanService) RecomputeCounts(ctx context.Context, id string) (*models.Scan, error) {
	return m.scanResult(m.Called(ctx, id))
}

func (m *MockScanService) RecoverInterrupted(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockScanService) scanResult(args mock.Arguments) (*models.Scan, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Scan), args.Error(1)
}

type MockVulnerabilityService struct {
	mock.Mock
}

func (m *MockVulnerabilityService) ListIssues(ctx context.Context, scanID, severity string) ([]models.Vulnerability, error) {
	args := m.Called(ctx, scanID, severity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Vulnerability), args.Error(1)
}

func (m *MockVulnerabilityService) ListWithSnippets(ctx context.Context, scanID string) ([]services.VulnerabilityWithSnippet, error) {
	args := m.Called(ctx, scanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.VulnerabilityWithSnippet), args.Error(1)
}

func (m *MockVulnerabilityService) GetVulnerability(ctx context.Context, id string) (*services.VulnerabilityDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.VulnerabilityDetail), args.Error(1)
}

func (m *MockVulnerabilityService) UpdateStatus(ctx context.Context, id, status string) (*models.Vulnerability, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vulnerability), args.Error(1)
}

const scanID = "123e4567-e89b-12d3-a456-426614174000"

func finishedHandle() *services.ScanHandle {
	done := make(chan struct{})
	close(done)
	return services.NewScanHandle(scanID, done)
}

func newScanRouter(scans *MockScanService, vulns *MockVulnerabilityService) *gin.Engine {
	handler := NewScanHandler(scans, vulns, logger.NewNopLogger())
	router := gin.New()
	router.POST("/api/scans/start", handler.StartScan)
	router.GET("/api/scans", handler.ListScans)
	router.GET("/api/scans/:id", handler.GetScan)
	router.DELETE("/api/scans/:id", handler.DeleteScan)
	router.POST("/api/scans/:id/stop", handler.StopScan)
	router.POST("/api/scans/:id/pause", handler.PauseScan)
	router.POST("/api/scans/:id/resume", handler.ResumeScan)
	router.GET("/api/scans/:id/issues", handler.ListIssues)
	router.GET("/api/scans/:id/vulnerabilities-with-snippet", handler.ListWithSnippets)
	return router
}

func serve(router *gin.Engine, method, url, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, url, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStartScan(t *testing.T) {
	gin.SetMode(gin.TestMode)

	validBody := `{"files":[{"name":"main.c","size":6,"content":"int x;"}],"scanType":"c","selectedTools":["cppcheck"]}`
	vuln := models.Vulnerability{
		ID:       "v-1",
		ScanID:   scanID,
		Tool:     tools.Cppcheck,
		Severity: taxonomy.SeverityHigh,
		Location: models.Location{File: "main.c", Line: 1},
		Title:    "Null pointer dereference",
		Status:   taxonomy.TriageOpen,
	}

	tests := []struct {
		name           string
		url            string
		requestBody    string
		setupMock      func(*MockScanService, *MockVulnerabilityService)
		expectedStatus int
		expectedBody   string
		validate       func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:        "Sync Request - Completed",
			url:         "/api/scans/start",
			requestBody: validBody,
			setupMock: func(s *MockScanService, v *MockVulnerabilityService) {
				s.On("StartScan", mock.Anything, mock.MatchedBy(func(req services.StartScanRequest) bool {
					return len(req.Files) == 1 && req.Files[0].Name == "main.c" &&
						req.ScanType == "c" && req.SelectedTools[0] == "cppcheck"
				})).Return(finishedHandle(), nil)
				s.On("GetScan", mock.Anything, scanID).Return(&models.Scan{
					ID:           scanID,
					Status:       models.ScanStatusCompleted,
					IssuesCounts: models.IssuesCounts{High: 1, Total: 1},
					ToolResults:  []models.ToolResult{{Tool: "cppcheck", Requested: "cppcheck", Status: "succeeded", Findings: 1}},
				}, nil)
				v.On("ListIssues", mock.Anything, scanID, "").Return([]models.Vulnerability{vuln}, nil)
			},
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp struct {
					Data StartScanResponse `json:"data"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, scanID, resp.Data.ScanID)
				assert.Equal(t, models.ScanStatusCompleted, resp.Data.Status)
				assert.Equal(t, 1, resp.Data.IssuesCount.Total)
				require.Len(t, resp.Data.Results, 1)
				assert.Equal(t, "v-1", resp.Data.Results[0].ID)
				require.Len(t, resp.Data.ToolResults, 1)
			},
		},
		{
			name:        "Async Request",
			url:         "/api/scans/start?async=true",
			requestBody: validBody,
			setupMock: func(s *MockScanService, v *MockVulnerabilityService) {
				s.On("StartScan", mock.Anything, mock.Anything).Return(services.NewScanHandle(scanID, make(chan struct{})), nil)
			},
			expectedStatus: http.StatusAccepted,
			expectedBody:   `{"data":{"scanId":"` + scanID + `","status":"pending","results":[],"issuesCount":{"critical":0,"high":0,"medium":0,"low":0,"total":0},"toolResults":[]}}`,
		},
		{
			name:        "Sync Request - Scan Failed",
			url:         "/api/scans/start",
			requestBody: validBody,
			setupMock: func(s *MockScanService, v *MockVulnerabilityService) {
				s.On("StartScan", mock.Anything, mock.Anything).Return(finishedHandle(), nil)
				s.On("GetScan", mock.Anything, scanID).Return(&models.Scan{
					ID:           scanID,
					Status:       models.ScanStatusFailed,
					ErrorMessage: "all tools failed (cppcheck: timeout)",
				}, nil)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"message":"Scan failed: all tools failed (cppcheck: timeout)"}`,
		},
		{
			name:           "Invalid JSON - Malformed",
			url:            "/api/scans/start",
			requestBody:    `{"files":}`,
			setupMock:      func(s *MockScanService, v *MockVulnerabilityService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"message":"Invalid request payload"}`,
		},
		{
			name:        "Service Rejects Request",
			url:         "/api/scans/start",
			requestBody: `{}`,
			setupMock: func(s *MockScanService, v *MockVulnerabilityService) {
				s.On("StartScan", mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("%w: no files", scanerrors.ErrInvalidRequest))
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"message":"invalid request: no files"}`,
		},
		{
			name:        "Service Error - Internal Error",
			url:         "/api/scans/start",
			requestBody: validBody,
			setupMock: func(s *MockScanService, v *MockVulnerabilityService) {
				s.On("StartScan", mock.Anything, mock.Anything).
					Return(nil, errors.New("database connection failed"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"message":"Failed to start scan"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scans := new(MockScanService)
			vulns := new(MockVulnerabilityService)
			tt.setupMock(scans, vulns)

			w := serve(newScanRouter(scans, vulns), http.MethodPost, tt.url, tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code,
				"Expected status %d, got %d. Response: %s",
				tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
			if tt.validate != nil {
				tt.validate(t, w)
			}

			scans.AssertExpectations(t)
			vulns.AssertExpectations(t)
		})
	}
}

func TestGetScan(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		scanID         string
		setupMock      func(*MockScanService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "Valid ID - Scan Found",
			scanID: scanID,
			setupMock: func(m *MockScanService) {
				m.On("GetScan", mock.Anything, scanID).Return(&models.Scan{
					ID:           scanID,
					Name:         "nightly",
					Status:       models.ScanStatusRunning,
					WorkspaceDir: "/var/lib/scanhub/scans/" + scanID,
				}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "Scan Not Found",
			scanID: "non-existent-id",
			setupMock: func(m *MockScanService) {
				m.On("GetScan", mock.Anything, "non-existent-id").Return(nil, scanerrors.ErrScanNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"message":"scan not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scans := new(MockScanService)
			tt.setupMock(scans)

			w := serve(newScanRouter(scans, new(MockVulnerabilityService)), http.MethodGet, "/api/scans/"+tt.scanID, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
			if w.Code == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"name":"nightly"`)
				assert.NotContains(t, w.Body.String(), "/var/lib/scanhub", "workspace paths are never serialized")
			}

			scans.AssertExpectations(t)
		})
	}
}

func TestListScans(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		query          string
		setupMock      func(*MockScanService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "Defaults",
			query: "",
			setupMock: func(m *MockScanService) {
				m.On("ListScans", mock.Anything, 1, 10).Return([]models.Scan{}, int64(0), nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"data":{"scans":[],"total":0,"page":1,"limit":10}}`,
		},
		{
			name:  "Explicit Page",
			query: "?page=3&limit=5",
			setupMock: func(m *MockScanService) {
				m.On("ListScans", mock.Anything, 3, 5).Return(nil, int64(0), nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"data":{"scans":[],"total":0,"page":3,"limit":5}}`,
		},
		{
			name:           "Invalid Page",
			query:          "?page=abc",
			setupMock:      func(m *MockScanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"message":"Invalid page"}`,
		},
		{
			name:  "Service Error",
			query: "",
			setupMock: func(m *MockScanService) {
				m.On("ListScans", mock.Anything, 1, 10).Return(nil, int64(0), errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"message":"Failed to list scans"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scans := new(MockScanService)
			tt.setupMock(scans)

			w := serve(newScanRouter(scans, new(MockVulnerabilityService)), http.MethodGet, "/api/scans"+tt.query, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			scans.AssertExpectations(t)
		})
	}
}

func TestScanLifecycleEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		path           string
		method         string
		setupMock      func(*MockScanService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "Stop",
			path:   "/stop",
			method: "StopScan",
			setupMock: func(m *MockScanService) {
				m.On("StopScan", mock.Anything, scanID).Return(&models.Scan{ID: scanID, Status: models.ScanStatusStopped}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "Stop Finished Scan",
			path:   "/stop",
			method: "StopScan",
			setupMock: func(m *MockScanService) {
				m.On("StopScan", mock.Anything, scanID).
					Return(nil, fmt.Errorf("%w: from completed to stopped", scanerrors.ErrInvalidTransition))
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"message":"invalid scan status transition: from completed to stopped"}`,
		},
		{
			name:   "Pause",
			path:   "/pause",
			method: "PauseScan",
			setupMock: func(m *MockScanService) {
				m.On("PauseScan", mock.Anything, scanID).Return(&models.Scan{ID: scanID, Status: models.ScanStatusPaused}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "Resume Unknown Scan",
			path:   "/resume",
			method: "ResumeScan",
			setupMock: func(m *MockScanService) {
				m.On("ResumeScan", mock.Anything, scanID).Return(nil, scanerrors.ErrScanNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"message":"scan not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scans := new(MockScanService)
			tt.setupMock(scans)

			w := serve(newScanRouter(scans, new(MockVulnerabilityService)), http.MethodPost, "/api/scans/"+scanID+tt.path, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
			scans.AssertNumberOfCalls(t, tt.method, 1)
		})
	}
}

func TestDeleteScan(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		scanID         string
		setupMock      func(*MockScanService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "Successful Deletion",
			scanID: "uuid-123",
			setupMock: func(m *MockScanService) {
				m.On("DeleteScan", mock.Anything, "uuid-123").Return(nil)
			},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:   "Scan Not Found",
			scanID: "missing-id",
			setupMock: func(m *MockScanService) {
				m.On("DeleteScan", mock.Anything, "missing-id").Return(scanerrors.ErrScanNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"message":"scan not found"}`,
		},
		{
			name:   "Service Error",
			scanID: "uuid-987",
			setupMock: func(m *MockScanService) {
				m.On("DeleteScan", mock.Anything, "uuid-987").Return(errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"message":"Failed to delete scan"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scans := new(MockScanService)
			tt.setupMock(scans)

			w := serve(newScanRouter(scans, new(MockVulnerabilityService)), http.MethodDelete, "/api/scans/"+tt.scanID, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			} else {
				assert.Equal(t, "", w.Body.String())
			}
			scans.AssertExpectations(t)
		})
	}
}

func TestListIssues(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		query          string
		setupMock      func(*MockVulnerabilityService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "Severity Filter",
			query: "?severity=high",
			setupMock: func(m *MockVulnerabilityService) {
				m.On("ListIssues", mock.Anything, scanID, "high").Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"data":{"issues":[]}}`,
		},
		{
			name:  "Invalid Severity",
			query: "?severity=urgent",
			setupMock: func(m *MockVulnerabilityService) {
				m.On("ListIssues", mock.Anything, scanID, "urgent").
					Return(nil, fmt.Errorf("%w: invalid severity: \"urgent\"", scanerrors.ErrInvalidRequest))
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"message":"invalid request: invalid severity: \"urgent\""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vulns := new(MockVulnerabilityService)
			tt.setupMock(vulns)

			w := serve(newScanRouter(new(MockScanService), vulns), http.MethodGet, "/api/scans/"+scanID+"/issues"+tt.query, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			vulns.AssertExpectations(t)
		})
	}
}

func TestListWithSnippets(t *testing.T) {
	gin.SetMode(gin.TestMode)

	vulns := new(MockVulnerabilityService)
	vulns.On("ListWithSnippets", mock.Anything, scanID).Return([]services.VulnerabilityWithSnippet{}, nil)

	w := serve(newScanRouter(new(MockScanService), vulns), http.MethodGet, "/api/scans/"+scanID+"/vulnerabilities-with-snippet", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, w.Body.String())
	vulns.AssertExpectations(t)
}

func BenchmarkStartScanAsync(b *testing.B) {
	gin.SetMode(gin.TestMode)

	scans := new(MockScanService)
	scans.On("StartScan", mock.Anything, mock.Anything).Return(services.NewScanHandle(scanID, make(chan struct{})), nil)
	router := newScanRouter(scans, new(MockVulnerabilityService))

	body := `{"files":[{"name":"main.c","content":"int x;"}],"selectedTools":["cppcheck"]}`

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		serve(router, http.MethodPost, "/api/scans/start?async=true", body)
	}
}
