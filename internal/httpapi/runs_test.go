package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/httpapi"
)

func TestCurrentRunReturnsRunningRun(t *testing.T) {
	d := newTestDeps(t)
	run, err := d.Store.CreateRun(context.Background(), 4)
	require.NoError(t, err)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/runs/current", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, run.ID.String(), body.ID)
	require.Equal(t, "running", body.Status)
}

func TestCurrentRunNotFoundWhenNoneRunning(t *testing.T) {
	d := newTestDeps(t)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/runs/current", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "ERR-RUN-404")
}

func TestGetRunByID(t *testing.T) {
	d := newTestDeps(t)
	run, err := d.Store.CreateRun(context.Background(), 2)
	require.NoError(t, err)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/runs/%s", run.ID), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetRunRejectsMalformedID(t *testing.T) {
	d := newTestDeps(t)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/runs/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsIncludesCompletedAndRunning(t *testing.T) {
	d := newTestDeps(t)
	_, err := d.Store.CreateRun(context.Background(), 1)
	require.NoError(t, err)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []map[string]any `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
}
