package httpapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/httpapi"
)

func TestCORSPreflightIsHandled(t *testing.T) {
	d := newTestDeps(t)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodOptions, "/tasks", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDHeaderIsSetOnResponses(t *testing.T) {
	d := newTestDeps(t)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
