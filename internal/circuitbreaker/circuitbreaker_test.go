package circuitbreaker_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/circuitbreaker"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store/gormstore"
)

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.New()
}

func newTestCircuitStore(t *testing.T) *gormstore.Store {
	t.Helper()
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStageCircuitOpensAfterMaxFailures(t *testing.T) {
	s := newTestCircuitStore(t)
	log := logging.NewNop()
	cfg := circuitbreaker.DefaultConfig()
	cfg.Stage.MaxFailures = 2
	c := circuitbreaker.NewStageCircuit(s, log, "task-1:green", cfg, nil)
	ctx := context.Background()

	ok, err := c.CheckAndAllow(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	tripped, err := c.RecordFailure(ctx, "assertion failed")
	require.NoError(t, err)
	require.False(t, tripped)

	tripped, err = c.RecordFailure(ctx, "assertion failed again")
	require.NoError(t, err)
	require.True(t, tripped)
	require.Equal(t, domain.CircuitOpen, c.State())

	allowed, err := c.CheckAndAllow(ctx)
	require.NoError(t, err)
	require.False(t, allowed, "open circuit blocks before recovery timeout elapses")
}

func TestWorkerCircuitPermanentlyOpensAfterMaxExtensions(t *testing.T) {
	s := newTestCircuitStore(t)
	log := logging.NewNop()
	cfg := circuitbreaker.DefaultConfig()
	cfg.Worker.MaxConsecutiveFailures = 1
	cfg.Worker.PauseDuration = -time.Second // recovery always eligible, to exercise extension path
	cfg.Worker.MaxExtensions = 1
	c := circuitbreaker.NewWorkerCircuit(s, log, "worker-1", cfg, nil)
	ctx := context.Background()

	_, err := c.RecordFailure(ctx, "boom")
	require.NoError(t, err)
	require.Equal(t, domain.CircuitOpen, c.State())

	allowed, err := c.CheckAndAllow(ctx) // transitions to half-open
	require.NoError(t, err)
	require.True(t, allowed)

	_, err = c.RecordFailure(ctx, "boom again") // extends pause
	require.NoError(t, err)
	require.True(t, c.IsPermanentlyOpen())
}

func TestSystemCircuitTripsOnFailurePercentage(t *testing.T) {
	s := newTestCircuitStore(t)
	log := logging.NewNop()
	cfg := circuitbreaker.DefaultConfig()
	cfg.System.FailureThresholdPercent = 50
	cfg.System.MinWorkersForThreshold = 2
	c := circuitbreaker.NewSystemCircuit(s, log, cfg, nil)
	c.SetTotalWorkers(4)
	ctx := context.Background()

	tripped, err := c.RecordWorkerFailure(ctx, "w1", "timeout")
	require.NoError(t, err)
	require.False(t, tripped)

	tripped, err = c.RecordWorkerFailure(ctx, "w2", "timeout")
	require.NoError(t, err)
	require.True(t, tripped, "2/4 workers failing meets the 50% threshold")

	halt, err := c.ShouldHalt(ctx)
	require.NoError(t, err)
	require.True(t, halt)
}

func TestSystemCircuitWaitForInFlightDrains(t *testing.T) {
	s := newTestCircuitStore(t)
	log := logging.NewNop()
	c := circuitbreaker.NewSystemCircuit(s, log, circuitbreaker.DefaultConfig(), nil)
	taskID := mustUUID(t)
	c.RegisterInFlight(taskID)

	go func() {
		time.Sleep(50 * time.Millisecond)
		c.CompleteInFlight(taskID)
	}()

	drained := c.WaitForInFlight(context.Background(), time.Second)
	require.True(t, drained)
}

func TestRegistryCachesStageCircuitsByIdentifier(t *testing.T) {
	s := newTestCircuitStore(t)
	log := logging.NewNop()
	reg := circuitbreaker.NewRegistry(s, log, circuitbreaker.DefaultConfig(), nil)

	a := reg.Stage("task-1:green")
	b := reg.Stage("task-1:green")
	require.Same(t, a, b)

	c := reg.Stage("task-2:green")
	require.NotSame(t, a, c)
}
