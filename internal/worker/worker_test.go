package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/circuitbreaker"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/executor"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/gitcoord"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/queue"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store/gormstore"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/worker"
)

func newTestEnv(t *testing.T) (*gormstore.Store, *queue.Queue, *circuitbreaker.Registry) {
	t.Helper()
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	q := queue.New(s, time.Minute)
	reg := circuitbreaker.NewRegistry(s, logging.NewNop(), circuitbreaker.DefaultConfig(), nil)
	return s, q, reg
}

func TestWorkerHappyPathSingleTask(t *testing.T) {
	s, q, reg := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTasks(ctx, []*domain.Task{{
		TaskKey:      "TDD-01",
		DoneCriteria: "all tests pass",
		Phase:        1, Sequence: 1,
		Status: domain.TaskPending,
	}}))

	fake := executor.NewFake()
	w := worker.New("worker-1", s, q, reg, fake, gitcoord.NewFake(), logging.NewNop(), worker.DefaultConfig())

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	stats, err := w.Run(runCtx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TasksCompleted)

	task, err := s.GetTask(ctx, "TDD-01")
	require.NoError(t, err)
	require.Equal(t, domain.TaskComplete, task.Status)

	attempts, err := s.ListAttempts(ctx, task.ID)
	require.NoError(t, err)
	require.NotEmpty(t, attempts)
	for _, a := range attempts {
		if a.Stage == domain.StageRed || a.Stage == domain.StageGreen || a.Stage == domain.StageVerify {
			require.True(t, a.Success)
		}
	}
}

func TestWorkerStageCircuitOpensAndBlocksTask(t *testing.T) {
	s, q, reg := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTasks(ctx, []*domain.Task{{
		TaskKey:      "TDD-03",
		DoneCriteria: "all tests pass",
		Phase:        1, Sequence: 1,
		Status: domain.TaskPending,
	}}))

	fake := executor.NewFake()
	fake.ScriptForceFail("TDD-03")

	cfg := circuitbreaker.DefaultConfig()
	cfg.Stage.MaxFailures = 1
	reg = circuitbreaker.NewRegistry(s, logging.NewNop(), cfg, nil)

	w := worker.New("worker-1", s, q, reg, fake, gitcoord.NewFake(), logging.NewNop(), worker.DefaultConfig())

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	stats, err := w.Run(runCtx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TasksFailed)

	task, err := s.GetTask(ctx, "TDD-03")
	require.NoError(t, err)
	require.Equal(t, domain.TaskBlocked, task.Status)
}
