package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/decomposer"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store/gormstore"
)

func TestSeedInsertsFixtureTasksIntoStore(t *testing.T) {
	s, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	tasks, err := decomposer.NewFixtureDecomposer("../../internal/decomposer/testdata").Decompose(ctx, "demo-spec")
	require.NoError(t, err)
	require.NotEmpty(t, tasks)

	require.NoError(t, s.InsertTasks(ctx, tasks))

	stats, err := s.TaskStats(ctx)
	require.NoError(t, err)
	require.Equal(t, len(tasks), stats.Total)
}
