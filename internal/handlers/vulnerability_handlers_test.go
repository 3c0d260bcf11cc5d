package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"scanhub/internal/models"
	"scanhub/internal/services"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
	"scanhub/pkg/snippet"
	"scanhub/pkg/taxonomy"
	"scanhub/pkg/tools"
)

type MockToolService struct {
	mock.Mock
}

func (m *MockToolService) ListTools() []services.ToolInfo {
	args := m.Called()
	return args.Get(0).([]services.ToolInfo)
}

func newVulnerabilityRouter(vulns *MockVulnerabilityService) *gin.Engine {
	handler := NewVulnerabilityHandler(vulns, logger.NewNopLogger())
	router := gin.New()
	router.GET("/api/vulnerabilities/:id", handler.GetVulnerability)
	router.PATCH("/api/vulnerabilities/:id/status", handler.UpdateStatus)
	return router
}

func TestGetVulnerability(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		id             string
		setupMock      func(*MockVulnerabilityService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "Found With Snippet",
			id:   "v-1",
			setupMock: func(m *MockVulnerabilityService) {
				m.On("GetVulnerability", mock.Anything, "v-1").Return(&services.VulnerabilityDetail{
					Vulnerability: models.Vulnerability{
						ID:         "v-1",
						ScanID:     scanID,
						Tool:       tools.ClangTidy,
						Severity:   taxonomy.SeverityMedium,
						Location:   models.Location{File: "main.c", Line: 2},
						Title:      "insecure call",
						References: []string{},
						Status:     taxonomy.TriageOpen,
					},
					CodeSnippet: snippet.Snippet{Available: true, Lines: []snippet.Line{
						{LineNumber: 1, Content: "int main(void) {"},
						{LineNumber: 2, Content: "  gets(b);", IsHighlighted: true},
					}},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"data":{"id":"v-1","scanId":"` + scanID + `","tool":"clangTidy","severity":"medium","type":"",
				"location":{"file":"main.c","line":2,"column":0},"title":"insecure call","description":"","references":[],
				"status":"open","createdAt":"0001-01-01T00:00:00Z",
				"codeSnippet":{"available":true,"lines":[{"lineNumber":1,"content":"int main(void) {","isHighlighted":false},
				{"lineNumber":2,"content":"  gets(b);","isHighlighted":true}]}}}`,
		},
		{
			name: "Not Found",
			id:   "missing",
			setupMock: func(m *MockVulnerabilityService) {
				m.On("GetVulnerability", mock.Anything, "missing").Return(nil, scanerrors.ErrVulnerabilityNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"message":"vulnerability not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vulns := new(MockVulnerabilityService)
			tt.setupMock(vulns)

			w := serve(newVulnerabilityRouter(vulns), http.MethodGet, "/api/vulnerabilities/"+tt.id, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			vulns.AssertExpectations(t)
		})
	}
}

func TestUpdateVulnerabilityStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockVulnerabilityService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "Valid Status",
			body: `{"status":"fixed"}`,
			setupMock: func(m *MockVulnerabilityService) {
				m.On("UpdateStatus", mock.Anything, "v-1", "fixed").
					Return(&models.Vulnerability{ID: "v-1", Status: taxonomy.TriageFixed}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Missing Status",
			body:           `{}`,
			setupMock:      func(m *MockVulnerabilityService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"message":"Invalid request payload"}`,
		},
		{
			name: "Unknown Status",
			body: `{"status":"wontfix"}`,
			setupMock: func(m *MockVulnerabilityService) {
				m.On("UpdateStatus", mock.Anything, "v-1", "wontfix").
					Return(nil, fmt.Errorf("%w: unknown triage status \"wontfix\"", scanerrors.ErrInvalidRequest))
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"message":"invalid request: unknown triage status \"wontfix\""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vulns := new(MockVulnerabilityService)
			tt.setupMock(vulns)

			w := serve(newVulnerabilityRouter(vulns), http.MethodPatch, "/api/vulnerabilities/v-1/status", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
			vulns.AssertExpectations(t)
		})
	}
}

func TestListTools(t *testing.T) {
	gin.SetMode(gin.TestMode)

	toolService := new(MockToolService)
	toolService.On("ListTools").Return([]services.ToolInfo{{
		Descriptor: tools.Descriptor{
			Name:        tools.Cppcheck,
			DisplayName: "Cppcheck",
			Category:    tools.CategoryLinter,
			Aliases:     []string{"cpp-check"},
		},
		Enabled: true,
	}})

	router := gin.New()
	router.GET("/api/tools", NewToolHandler(toolService).ListTools)

	w := serve(router, http.MethodGet, "/api/tools", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"tools":[{"name":"cppcheck","displayName":"Cppcheck","category":"linter","aliases":["cpp-check"],"enabled":true}]}}`, w.Body.String())
	toolService.AssertExpectations(t)
}
