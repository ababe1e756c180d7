// Package queue is the dependency-ordered task queue (spec §4.2, C2):
// a thin coordination layer over store.Store's NextReadyTask/ClaimTask
// primitives, adding the claim-retry loop a worker needs when it loses
// a race for the task it was handed.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

// ErrEmpty is returned when no ready task exists right now.
var ErrEmpty = errors.New("queue: no ready task")

type Queue struct {
	store store.Store
	lease time.Duration
	sf    singleflight.Group
}

func New(s store.Store, lease time.Duration) *Queue {
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	return &Queue{store: s, lease: lease}
}

// Claim finds the next ready task ordered by (phase, sequence) and
// claims it for workerID, retrying against the next candidate if the
// claim is lost to a concurrent worker (spec §4.2, §8 "no double-claim").
//
// Idle workers tend to poll in lockstep right after a task completes;
// the lookup half of the loop is collapsed through singleflight so a
// burst of simultaneous pollers shares one NextReadyTask round-trip to
// the store instead of each issuing its own. Only the claim itself
// (ClaimTask) needs per-worker isolation, since that's where the race
// is actually decided.
func (q *Queue) Claim(ctx context.Context, workerID string) (*domain.Task, error) {
	for attempts := 0; attempts < maxClaimAttempts; attempts++ {
		v, err, _ := q.sf.Do("next-ready-task", func() (interface{}, error) {
			return q.store.NextReadyTask(ctx)
		})
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrEmpty
		}
		if err != nil {
			return nil, err
		}
		task := v.(*domain.Task)
		ok, err := q.store.ClaimTask(ctx, task.ID, workerID, q.lease)
		if err != nil {
			return nil, err
		}
		if ok {
			task.ClaimedBy = &workerID
			return task, nil
		}
		// lost the race; loop and pick the next candidate.
	}
	return nil, ErrEmpty
}

// maxClaimAttempts bounds the retry loop so a persistently contended
// queue fails fast instead of spinning forever.
const maxClaimAttempts = 25

func (q *Queue) Release(ctx context.Context, taskID uuid.UUID, workerID string, outcome domain.ClaimOutcome) error {
	return q.store.ReleaseTask(ctx, taskID, workerID, outcome)
}

// ReapStale returns expired in-progress claims to pending so they can
// be reclaimed by another worker (spec §7 "Worker crash mid-task").
func (q *Queue) ReapStale(ctx context.Context) (int, error) {
	return q.store.ReclaimStale(ctx)
}
