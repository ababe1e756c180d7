package gitcoord

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
)

// GoGit is the production Coordinator, backed by an on-disk worktree.
// It mirrors test_git_coordinator.py's behavior: branches are named
// "worker-{n}/{task_key}", commits fail loudly on an empty worktree,
// and rollback always returns to main and deletes the worker branch.
type GoGit struct {
	repo *git.Repository
	log  *logging.Logger
}

func Open(path string, log *logging.Logger) (*GoGit, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("gitcoord: opening repository at %s: %w", path, err)
	}
	return &GoGit{repo: repo, log: log}, nil
}

func (g *GoGit) CreateWorkerBranch(ctx context.Context, workerNum int, taskKey string) (string, error) {
	branch := fmt.Sprintf("worker-%d/%s", workerNum, taskKey)

	wt, err := g.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("gitcoord: worktree: %w", err)
	}
	head, err := g.repo.Head()
	if err != nil {
		return "", fmt.Errorf("gitcoord: resolving HEAD: %w", err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	err = wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: true, Hash: head.Hash()})
	if err != nil {
		return "", fmt.Errorf("gitcoord: creating branch %s: %w", branch, err)
	}

	g.log.Debug("created worker branch", "branch", branch, "worker_id", fmt.Sprint(workerNum))
	return branch, nil
}

func (g *GoGit) Checkout(ctx context.Context, branch string) error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("gitcoord: worktree: %w", err)
	}
	ref := plumbing.NewBranchReferenceName(branch)
	if _, err := g.repo.Reference(ref, true); err != nil {
		return fmt.Errorf("gitcoord: branch %s does not exist: %w", branch, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref}); err != nil {
		return fmt.Errorf("gitcoord: checking out %s: %w", branch, err)
	}
	return nil
}

func (g *GoGit) CurrentBranch(ctx context.Context) (string, error) {
	head, err := g.repo.Head()
	if err != nil {
		return "", fmt.Errorf("gitcoord: resolving HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("gitcoord: HEAD is detached")
	}
	return head.Name().Short(), nil
}

func (g *GoGit) HasUncommittedChanges(ctx context.Context) (bool, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("gitcoord: worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("gitcoord: status: %w", err)
	}
	return !status.IsClean(), nil
}

func (g *GoGit) CommitChanges(ctx context.Context, message string) (string, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("gitcoord: worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("gitcoord: status: %w", err)
	}
	if status.IsClean() {
		return "", errors.New("gitcoord: no changes to commit")
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("gitcoord: staging changes: %w", err)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "tdd-orchestrator", Email: "tdd-orchestrator@localhost"},
	})
	if err != nil {
		return "", fmt.Errorf("gitcoord: committing: %w", err)
	}
	return hash.String(), nil
}

// Stash stages and commits a "defensive" WIP commit on the current
// branch rather than using a detached stash entry, since go-git has no
// native stash API; the commit hash doubles as the stash ref and
// StashPop reverses it with a mixed reset to the commit's parent, which
// leaves the stashed changes in the working tree.
func (g *GoGit) Stash(ctx context.Context, reason string) (string, error) {
	dirty, err := g.HasUncommittedChanges(ctx)
	if err != nil {
		return "", err
	}
	if !dirty {
		return "", nil
	}
	hash, err := g.CommitChanges(ctx, fmt.Sprintf("wip-stash: %s", reason))
	if err != nil {
		return "", fmt.Errorf("gitcoord: stashing: %w", err)
	}
	return hash, nil
}

func (g *GoGit) StashPop(ctx context.Context, stashRef string) error {
	if stashRef == "" {
		return nil
	}
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("gitcoord: worktree: %w", err)
	}
	parent, err := g.parentOf(stashRef)
	if err != nil {
		return err
	}
	if err := wt.Reset(&git.ResetOptions{Commit: parent, Mode: git.MixedReset}); err != nil {
		return fmt.Errorf("gitcoord: restoring stash %s: %w", stashRef, err)
	}
	return nil
}

func (g *GoGit) parentOf(commitHash string) (plumbing.Hash, error) {
	commit, err := g.repo.CommitObject(plumbing.NewHash(commitHash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitcoord: resolving commit %s: %w", commitHash, err)
	}
	if commit.NumParents() == 0 {
		return plumbing.ZeroHash, fmt.Errorf("gitcoord: commit %s has no parent", commitHash)
	}
	return commit.ParentHashes[0], nil
}

func (g *GoGit) RollbackToMain(ctx context.Context, branch string) error {
	if err := g.Checkout(ctx, "main"); err != nil {
		return err
	}
	return g.DeleteBranch(ctx, branch, true)
}

func (g *GoGit) DeleteBranch(ctx context.Context, branch string, force bool) error {
	ref := plumbing.NewBranchReferenceName(branch)
	if err := g.repo.Storer.RemoveReference(ref); err != nil && !force {
		return fmt.Errorf("gitcoord: deleting branch %s: %w", branch, err)
	}
	return nil
}

var _ Coordinator = (*GoGit)(nil)
