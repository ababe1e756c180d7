package httpapi_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/httpapi"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/metrics"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store/gormstore"
)

// newTestDeps builds a Deps wired to a fresh in-memory SQLite store, a
// real in-process bus, and a live metrics registry — no network I/O,
// matching the teacher's handler-level test setup.
func newTestDeps(t *testing.T) httpapi.Deps {
	t.Helper()
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return httpapi.Deps{
		Store:   s,
		Bus:     broadcaster.NewMemory(logging.NewNop()),
		Metrics: metrics.Init(),
		Log:     logging.NewNop(),
	}
}

func seedTask(t *testing.T, d httpapi.Deps, key string, status domain.TaskStatus) *domain.Task {
	t.Helper()
	task := &domain.Task{
		ID:            uuid.New(),
		TaskKey:       key,
		Title:         "Do the thing",
		Goal:          "make it work",
		Phase:         1,
		Sequence:      1,
		TestFile:      "foo_test.go",
		ImplFile:      "foo.go",
		VerifyCommand: "go test ./...",
		DoneCriteria:  "tests pass",
		Status:        status,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, d.Store.InsertTasks(context.Background(), []*domain.Task{task}))
	return task
}
