package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store/gormstore"
)

func TestResetCircuitByLevelClosesOpenCircuit(t *testing.T) {
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	c, err := s.CreateCircuit(ctx, domain.CircuitLevelStage, "green", nil, nil)
	require.NoError(t, err)
	five := 5
	ok, err := s.UpdateCircuit(ctx, c.ID, c.Version, store.CircuitFields{
		State:        domain.CircuitOpen,
		FailureCount: &five,
	})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, resetCircuitByLevel(ctx, s, domain.CircuitLevelStage, "green"))

	reloaded, err := s.GetCircuit(ctx, domain.CircuitLevelStage, "green")
	require.NoError(t, err)
	require.Equal(t, domain.CircuitClosed, reloaded.State)
	require.Equal(t, 0, reloaded.FailureCount)
}

func TestResetCircuitByLevelErrorsWhenMissing(t *testing.T) {
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	err = resetCircuitByLevel(context.Background(), s, domain.CircuitLevelWorker, "does-not-exist")
	require.Error(t, err)
}
