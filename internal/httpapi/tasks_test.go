package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/httpapi"
)

func TestListTasksReturnsSeededTasks(t *testing.T) {
	d := newTestDeps(t)
	seedTask(t, d, "T-001", domain.TaskPending)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tasks []map[string]any `json:"tasks"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	require.Equal(t, "T-001", body.Tasks[0]["task_key"])
}

func TestListTasksRejectsInvalidStatus(t *testing.T) {
	d := newTestDeps(t)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/tasks?status=not-a-status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "ERR-VALIDATION-422")
}

func TestGetTaskReturns404ForUnknownKey(t *testing.T) {
	d := newTestDeps(t)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/tasks/does-not-exist", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "ERR-TASK-404")
}

func TestGetTaskReturnsTaskWithAttempts(t *testing.T) {
	d := newTestDeps(t)
	seedTask(t, d, "T-002", domain.TaskPassing)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/tasks/T-002", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		TaskKey  string `json:"task_key"`
		Attempts []any  `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "T-002", body.TaskKey)
	require.Empty(t, body.Attempts)
}

func TestRetryTaskResetsBlockedTaskToPending(t *testing.T) {
	d := newTestDeps(t)
	seedTask(t, d, "T-003", domain.TaskBlocked)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/tasks/T-003/retry", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"pending"`)
}

func TestRetryTaskConflictsWhenInProgress(t *testing.T) {
	d := newTestDeps(t)
	seedTask(t, d, "T-004", domain.TaskInProgress)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/tasks/T-004/retry", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "ERR-TASK-RETRY-409")
}

func TestRetryTaskConflictsWhenComplete(t *testing.T) {
	d := newTestDeps(t)
	seedTask(t, d, "T-004B", domain.TaskComplete)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/tasks/T-004B/retry", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "ERR-TASK-RETRY-409")
}

func TestRetryTaskConflictsWhenPassing(t *testing.T) {
	d := newTestDeps(t)
	seedTask(t, d, "T-004C", domain.TaskPassing)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/tasks/T-004C/retry", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "ERR-TASK-RETRY-409")
}

func TestRetryTaskSucceedsForBlockedStaticReview(t *testing.T) {
	d := newTestDeps(t)
	seedTask(t, d, "T-004D", domain.TaskBlockedStaticReview)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/tasks/T-004D/retry", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"pending"`)
}

func TestRetryTaskNotFound(t *testing.T) {
	d := newTestDeps(t)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/tasks/nope/retry", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShadowSummaryIsAlwaysEmpty(t *testing.T) {
	d := newTestDeps(t)
	seedTask(t, d, "T-005", domain.TaskComplete)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/tasks/T-005/shadow-summary", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Shadow []any `json:"shadow"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Shadow)
}

func TestTaskStatsReturnsCounts(t *testing.T) {
	d := newTestDeps(t)
	seedTask(t, d, "T-006", domain.TaskPending)
	seedTask(t, d, "T-007", domain.TaskPassing)
	r := httpapi.NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/tasks/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Total)
}
