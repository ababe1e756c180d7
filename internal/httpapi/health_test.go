package httpapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/httpapi"
)

func TestHealthReturnsOKWithNoOpenCircuits(t *testing.T) {
	d := newTestDeps(t)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpointExposesRegistry(t *testing.T) {
	d := newTestDeps(t)
	r := httpapi.NewRouter(d)

	// Drive one request through the access-log middleware first so the
	// http_requests counter has at least one labeled observation —
	// a CounterVec exposes nothing until a label combination fires.
	warm := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(httptest.NewRecorder(), warm)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "orch_http_requests_total")
}
