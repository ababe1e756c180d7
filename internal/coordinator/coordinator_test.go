package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/circuitbreaker"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/coordinator"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/decomposer"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/executor"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/gitcoord"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store/gormstore"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/worker"
)

func TestCoordinatorRunOnceCompletesHappyPath(t *testing.T) {
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	d := decomposer.NewFixtureDecomposer("../decomposer/testdata")
	bus := broadcaster.NewMemory(logging.NewNop())
	_, events := bus.Subscribe(32)

	c := coordinator.New(s, d, executor.NewFake(), gitcoord.NewFake(), bus, logging.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go func() {
		for i := 0; i < 100; i++ {
			time.Sleep(20 * time.Millisecond)
			stats, err := s.TaskStats(context.Background())
			if err == nil && stats.Passed+stats.Failed >= 2 {
				time.Sleep(20 * time.Millisecond) // let the final commit/release settle
				cancel()
				return
			}
		}
	}()

	summary, err := c.RunOnce(ctx, coordinator.Config{
		SpecID:        "demo-spec",
		MaxWorkers:    1,
		ClaimLease:    time.Minute,
		ObserverTick:  20 * time.Millisecond,
		CircuitConfig: circuitbreaker.DefaultConfig(),
		WorkerConfig:  worker.DefaultConfig(),
	})

	require.NoError(t, err)
	require.Equal(t, domain.RunCompleted, summary.Status)
	require.Equal(t, 2, summary.Pool.TasksCompleted)

	select {
	case ev := <-events:
		require.Equal(t, coordinator.EventTaskStatusChanged, ev.Type)
	default:
		t.Fatal("expected at least one task_status_changed event bridged to the broadcaster")
	}
}

func TestCoordinatorRunOnceHaltsWhenSystemCircuitTrips(t *testing.T) {
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	d := decomposer.NewFixtureDecomposer("../decomposer/testdata")
	bus := broadcaster.NewMemory(logging.NewNop())

	fake := executor.NewFake()
	fake.ScriptForceFail("TDD-01")
	c := coordinator.New(s, d, fake, gitcoord.NewFake(), bus, logging.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go func() {
		for i := 0; i < 150; i++ {
			time.Sleep(20 * time.Millisecond)
			circuit, err := s.GetCircuit(context.Background(), domain.CircuitLevelSystem, "system")
			if err == nil && circuit.State == domain.CircuitOpen {
				time.Sleep(20 * time.Millisecond) // let the worker observe the halt before ctx cancels
				cancel()
				return
			}
		}
	}()

	// Two workers is the minimum that lets a single failing worker
	// reach the 50% default FailureThresholdPercent, tripping the
	// system circuit on its very first recorded failure (spec §4.4,
	// seed Scenario 6).
	summary, err := c.RunOnce(ctx, coordinator.Config{
		SpecID:        "demo-spec",
		MaxWorkers:    2,
		ClaimLease:    time.Minute,
		ObserverTick:  20 * time.Millisecond,
		CircuitConfig: circuitbreaker.DefaultConfig(),
		WorkerConfig:  worker.DefaultConfig(),
	})
	require.NoError(t, err)
	_ = summary

	circuit, err := s.GetCircuit(context.Background(), domain.CircuitLevelSystem, "system")
	require.NoError(t, err)
	require.Equal(t, domain.CircuitOpen, circuit.State)

	// TDD-02 depends on TDD-01, which never reached "complete" (it was
	// blocked by its own pipeline failure), so TDD-02 must never have
	// become claimable while the run was halted.
	blocked, err := s.GetTask(context.Background(), "TDD-01")
	require.NoError(t, err)
	require.Equal(t, domain.TaskBlocked, blocked.Status)

	stillPending, err := s.GetTask(context.Background(), "TDD-02")
	require.NoError(t, err)
	require.Equal(t, domain.TaskPending, stillPending.Status)
}

func TestCoordinatorRunOnceStopsOnDecomposeFailure(t *testing.T) {
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	d := decomposer.NewFixtureDecomposer("../decomposer/testdata")
	bus := broadcaster.NewMemory(logging.NewNop())
	c := coordinator.New(s, d, executor.NewFake(), gitcoord.NewFake(), bus, logging.NewNop())

	summary, err := c.RunOnce(context.Background(), coordinator.Config{
		SpecID:        "no-such-spec",
		MaxWorkers:    1,
		ClaimLease:    time.Minute,
		ObserverTick:  20 * time.Millisecond,
		CircuitConfig: circuitbreaker.DefaultConfig(),
		WorkerConfig:  worker.DefaultConfig(),
	})

	require.NoError(t, err)
	require.Equal(t, domain.RunFailed, summary.Status)
	require.Equal(t, coordinator.StopDecompose, summary.StopReason)
}
