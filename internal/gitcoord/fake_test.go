package gitcoord_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/gitcoord"
)

func TestFakeCreateWorkerBranchNaming(t *testing.T) {
	g := gitcoord.NewFake()
	ctx := context.Background()

	branch1, err := g.CreateWorkerBranch(ctx, 1, "TDD-01")
	require.NoError(t, err)
	require.Equal(t, "worker-1/TDD-01", branch1)

	require.NoError(t, g.Checkout(ctx, "main"))

	branch2, err := g.CreateWorkerBranch(ctx, 2, "TDD-02")
	require.NoError(t, err)
	require.Equal(t, "worker-2/TDD-02", branch2)
}

func TestFakeSwitchBranch(t *testing.T) {
	g := gitcoord.NewFake()
	ctx := context.Background()

	b1, err := g.CreateWorkerBranch(ctx, 1, "TDD-01")
	require.NoError(t, err)
	require.NoError(t, g.Checkout(ctx, "main"))
	b2, err := g.CreateWorkerBranch(ctx, 2, "TDD-02")
	require.NoError(t, err)

	require.NoError(t, g.Checkout(ctx, b1))
	current, err := g.CurrentBranch(ctx)
	require.NoError(t, err)
	require.Equal(t, b1, current)

	require.NoError(t, g.Checkout(ctx, b2))
	current, err = g.CurrentBranch(ctx)
	require.NoError(t, err)
	require.Equal(t, b2, current)
}

func TestFakeCommitNoChangesFails(t *testing.T) {
	g := gitcoord.NewFake()
	ctx := context.Background()
	_, err := g.CreateWorkerBranch(ctx, 1, "TDD-01")
	require.NoError(t, err)

	_, err = g.CommitChanges(ctx, "empty commit")
	require.Error(t, err)
}

func TestFakeCommitWithChanges(t *testing.T) {
	g := gitcoord.NewFake()
	ctx := context.Background()
	_, err := g.CreateWorkerBranch(ctx, 1, "TDD-01")
	require.NoError(t, err)
	g.MarkDirty()

	hash, err := g.CommitChanges(ctx, "feat(TDD-01): add new file")
	require.NoError(t, err)
	require.Len(t, hash, 40)

	dirty, err := g.HasUncommittedChanges(ctx)
	require.NoError(t, err)
	require.False(t, dirty)
}

func TestFakeRollbackDeletesBranchAndReturnsToMain(t *testing.T) {
	g := gitcoord.NewFake()
	ctx := context.Background()
	branch, err := g.CreateWorkerBranch(ctx, 1, "TDD-01")
	require.NoError(t, err)

	require.NoError(t, g.RollbackToMain(ctx, branch))

	current, err := g.CurrentBranch(ctx)
	require.NoError(t, err)
	require.Equal(t, "main", current)

	err = g.Checkout(ctx, branch)
	require.Error(t, err, "rolled-back branch must no longer be checkoutable")
}
