package gormstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTask(t *testing.T, s *Store, key string, deps ...string) *domain.Task {
	t.Helper()
	task := &domain.Task{
		TaskKey:   key,
		Title:     key,
		DependsOn: deps,
		Status:    domain.TaskPending,
	}
	require.NoError(t, s.InsertTasks(context.Background(), []*domain.Task{task}))
	return task
}

func TestClaimTaskNoDoubleClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := seedTask(t, s, "t1")

	var wg sync.WaitGroup
	wins := make([]bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.ClaimTask(ctx, task.ID, uuid.NewString(), time.Minute)
			require.NoError(t, err)
			wins[i] = ok
		}(i)
	}
	wg.Wait()

	won := 0
	for _, w := range wins {
		if w {
			won++
		}
	}
	require.Equal(t, 1, won, "exactly one worker should win the claim race")
}

func TestReleaseTaskClearsClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := seedTask(t, s, "t1")

	worker := "worker-1"
	ok, err := s.ClaimTask(ctx, task.ID, worker, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.ReleaseTask(ctx, task.ID, worker, domain.ClaimCompleted))

	got, err := s.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	require.Nil(t, got.ClaimedBy)
}

func TestReleaseTaskWrongWorkerFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := seedTask(t, s, "t1")

	ok, err := s.ClaimTask(ctx, task.ID, "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = s.ReleaseTask(ctx, task.ID, "worker-2", domain.ClaimCompleted)
	require.ErrorIs(t, err, store.ErrClaimLost)
}

func TestNextReadyTaskRespectsDependencies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTask(t, s, "base")
	seedTask(t, s, "dependent", "base")

	next, err := s.NextReadyTask(ctx)
	require.NoError(t, err)
	require.Equal(t, "base", next.TaskKey, "dependent must wait until base is passing or complete")

	require.NoError(t, s.UpdateTaskStatus(ctx, next.ID, domain.TaskPassing))

	next2, err := s.NextReadyTask(ctx)
	require.NoError(t, err)
	require.Equal(t, "dependent", next2.TaskKey)
}

func TestReclaimStaleReturnsExpiredClaimsToPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := seedTask(t, s, "t1")

	ok, err := s.ClaimTask(ctx, task.ID, "worker-1", -time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.ReclaimStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskPending, got.Status)
	require.Nil(t, got.ClaimedBy)
}

func TestUpdateCircuitOptimisticLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateCircuit(ctx, domain.CircuitLevelStage, "red", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, c.Version)

	ok, err := s.UpdateCircuit(ctx, c.ID, c.Version, store.CircuitFields{State: domain.CircuitOpen})
	require.NoError(t, err)
	require.True(t, ok)

	// stale version must fail, not panic or silently overwrite.
	ok, err = s.UpdateCircuit(ctx, c.ID, c.Version, store.CircuitFields{State: domain.CircuitClosed})
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.GetCircuit(ctx, domain.CircuitLevelStage, "red")
	require.NoError(t, err)
	require.Equal(t, domain.CircuitOpen, got.State)
	require.Equal(t, 2, got.Version)
}

func TestTaskProgressCountsOnlyPassing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedTask(t, s, "a")
	b := seedTask(t, s, "b")
	seedTask(t, s, "c")

	require.NoError(t, s.UpdateTaskStatus(ctx, a.ID, domain.TaskPassing))
	require.NoError(t, s.UpdateTaskStatus(ctx, b.ID, domain.TaskComplete))

	progress, err := s.TaskProgress(ctx)
	require.NoError(t, err)
	// 1 of 3 tasks is "passing"; "complete" does not add to the bucket
	// (spec open question #1 decision: passing is the progress signal,
	// complete is terminal-after-passing).
	require.InDelta(t, 100.0/3.0, progress["phase_0"], 0.01)
}
