// Package gitcoord isolates worker-local branch and stash operations
// from the rest of the pipeline, grounded on
// test_git_coordinator.py's GitCoordinator: one branch per in-flight
// worker ("worker-{id}/{task_key}"), commit-or-rollback per task, and
// a defensive stash before any risky operation.
package gitcoord

import "context"

// Coordinator is the git-branch collaborator a worker consults around
// each task: create its branch, commit the result, or roll back.
type Coordinator interface {
	CreateWorkerBranch(ctx context.Context, workerNum int, taskKey string) (branch string, err error)
	Checkout(ctx context.Context, branch string) error
	CurrentBranch(ctx context.Context) (string, error)
	HasUncommittedChanges(ctx context.Context) (bool, error)
	CommitChanges(ctx context.Context, message string) (commitHash string, err error)
	Stash(ctx context.Context, reason string) (stashRef string, err error)
	StashPop(ctx context.Context, stashRef string) error
	RollbackToMain(ctx context.Context, branch string) error
	DeleteBranch(ctx context.Context, branch string, force bool) error
}
