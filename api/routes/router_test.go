package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhub/internal/dao"
	"scanhub/internal/services"
	"scanhub/pkg/engine"
	"scanhub/pkg/logger"
	"scanhub/pkg/normalizer"
	"scanhub/pkg/testutil"
	"scanhub/pkg/tools"
)

func newTestRouter(t *testing.T, origins ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	log := logger.NewNopLogger()
	norm, err := normalizer.New(log, nil)
	require.NoError(t, err)

	scanDao := dao.NewScanDAO(db, nil)
	vulnDao := dao.NewVulnerabilityDAO(db, nil)

	scanService := services.NewScanService(services.ScanServiceDeps{
		ScanDAO:       scanDao,
		Factory:       testutil.FakeFactory{tools.Cppcheck: &testutil.FakeAdapter{Name: tools.Cppcheck}},
		Engine:        engine.NewEngine(log),
		Normalizer:    norm,
		Queue:         engine.NewScanQueue(2, log),
		Logger:        log,
		WorkspaceRoot: t.TempDir(),
	})

	return InitRouter(RouterDeps{
		ScanService: scanService,
		VulnService: services.NewVulnerabilityService(scanDao, vulnDao, nil, log),
		ToolService: services.NewToolService(nil, nil),
		Logger:      log,
		CORSOrigins: origins,
	})
}

func serve(router *gin.Engine, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouterScanRoundTrip(t *testing.T) {
	router := newTestRouter(t)

	body := `{"files":[{"name":"main.c","size":2,"content":"{}"}],"selectedTools":["cpp-check"]}`
	w := serve(router, http.MethodPost, "/api/scans/start", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var started struct {
		Data struct {
			ScanID string `json:"scanId"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, "completed", started.Data.Status)

	w = serve(router, http.MethodGet, "/api/scans/"+started.Data.ScanID, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"selectedTools":["cppcheck"]`)

	w = serve(router, http.MethodGet, "/api/scans/"+started.Data.ScanID+"/issues", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodDelete, "/api/scans/"+started.Data.ScanID, "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(router, http.MethodGet, "/api/scans/"+started.Data.ScanID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterListsTools(t *testing.T) {
	router := newTestRouter(t)

	w := serve(router, http.MethodGet, "/api/tools", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Tools []tools.Descriptor `json:"tools"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Tools, len(tools.DefaultRegistry().All()))
}

func TestRouterRequestID(t *testing.T) {
	router := newTestRouter(t)

	w := serve(router, http.MethodGet, "/api/scans", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(router, http.MethodGet, "/api/scans", "", http.Header{"X-Request-Id": {"req-42"}})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestRouterCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		wantHeader string
	}{
		{name: "disabled", origins: nil, wantHeader: ""},
		{name: "allowed origin", origins: []string{"http://localhost:3000"}, wantHeader: "http://localhost:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, tt.origins...)
			w := serve(router, http.MethodGet, "/api/tools", "", http.Header{"Origin": {"http://localhost:3000"}})
			assert.Equal(t, tt.wantHeader, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
