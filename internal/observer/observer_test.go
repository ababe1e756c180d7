package observer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/observer"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store/gormstore"
)

func TestObserverEmitsOneEventPerTransition(t *testing.T) {
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.InsertTasks(ctx, []*domain.Task{{TaskKey: "TDD-01", Phase: 1, Sequence: 1, Status: domain.TaskPending}}))

	obs := observer.New(s, logging.NewNop(), 20*time.Millisecond)

	var mu sync.Mutex
	var changes []observer.StatusChange
	obs.Register(func(c observer.StatusChange) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	})

	obs.Start(ctx)
	defer obs.Stop()

	time.Sleep(50 * time.Millisecond) // let the baseline tick establish the snapshot

	task, err := s.GetTask(ctx, "TDD-01")
	require.NoError(t, err)
	require.NoError(t, s.UpdateTaskStatus(ctx, task.ID, domain.TaskInProgress))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, domain.TaskPending, changes[0].OldStatus)
	require.Equal(t, domain.TaskInProgress, changes[0].NewStatus)
}

func TestObserverStartStopIdempotent(t *testing.T) {
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	obs := observer.New(s, logging.NewNop(), 10*time.Millisecond)
	ctx := context.Background()

	obs.Start(ctx)
	obs.Start(ctx) // no-op, must not deadlock or spawn a second loop
	obs.Stop()
	obs.Stop() // no-op
}

func TestObserverCallbackPanicIsolated(t *testing.T) {
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.InsertTasks(ctx, []*domain.Task{{TaskKey: "TDD-01", Phase: 1, Sequence: 1, Status: domain.TaskPending}}))

	obs := observer.New(s, logging.NewNop(), 20*time.Millisecond)

	var called bool
	var mu sync.Mutex
	obs.Register(func(c observer.StatusChange) { panic("boom") })
	obs.Register(func(c observer.StatusChange) {
		mu.Lock()
		defer mu.Unlock()
		called = true
	})

	obs.Start(ctx)
	defer obs.Stop()
	time.Sleep(50 * time.Millisecond)

	task, err := s.GetTask(ctx, "TDD-01")
	require.NoError(t, err)
	require.NoError(t, s.UpdateTaskStatus(ctx, task.ID, domain.TaskInProgress))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return called
	}, time.Second, 10*time.Millisecond)
}
