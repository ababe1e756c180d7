package gitcoord

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Coordinator for tests: no real repository, just
// enough bookkeeping to assert branch/commit/stash call sequences.
type Fake struct {
	mu             sync.Mutex
	current        string
	branches       map[string]bool
	dirty          bool
	commits        []string
	nextCommitSeq  int
	nextStashSeq   int
	DeletedBranches []string
}

func NewFake() *Fake {
	return &Fake{current: "main", branches: map[string]bool{"main": true}}
}

// MarkDirty simulates a worker producing uncommitted changes.
func (f *Fake) MarkDirty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty = true
}

func (f *Fake) CreateWorkerBranch(ctx context.Context, workerNum int, taskKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	branch := fmt.Sprintf("worker-%d/%s", workerNum, taskKey)
	f.branches[branch] = true
	f.current = branch
	return branch, nil
}

func (f *Fake) Checkout(ctx context.Context, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.branches[branch] {
		return fmt.Errorf("gitcoord: fake: branch %s does not exist", branch)
	}
	f.current = branch
	return nil
}

func (f *Fake) CurrentBranch(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *Fake) HasUncommittedChanges(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty, nil
}

func (f *Fake) CommitChanges(ctx context.Context, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return "", fmt.Errorf("gitcoord: fake: no changes to commit")
	}
	f.dirty = false
	f.nextCommitSeq++
	hash := fmt.Sprintf("%040d", f.nextCommitSeq)
	f.commits = append(f.commits, hash)
	return hash, nil
}

func (f *Fake) Stash(ctx context.Context, reason string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return "", nil
	}
	f.dirty = false
	f.nextStashSeq++
	return fmt.Sprintf("stash@{%d}", f.nextStashSeq-1), nil
}

func (f *Fake) StashPop(ctx context.Context, stashRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stashRef == "" {
		return nil
	}
	f.dirty = true
	return nil
}

func (f *Fake) RollbackToMain(ctx context.Context, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = "main"
	delete(f.branches, branch)
	f.DeletedBranches = append(f.DeletedBranches, branch)
	return nil
}

func (f *Fake) DeleteBranch(ctx context.Context, branch string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.branches[branch] && !force {
		return fmt.Errorf("gitcoord: fake: branch %s does not exist", branch)
	}
	delete(f.branches, branch)
	f.DeletedBranches = append(f.DeletedBranches, branch)
	return nil
}

var _ Coordinator = (*Fake)(nil)
