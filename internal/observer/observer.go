// Package observer is the CDC-style polling loop described in spec.md
// C8: a single background ticker that diffs the store's task-status
// snapshot against the previous tick and dispatches one event per
// changed key to every registered callback. Grounded on the teacher's
// ticker-driven background-loop idiom (internal/jobs/worker/worker.go)
// generalized from job polling to status-diffing.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

// DefaultInterval matches spec §4.8's "interval ~100 ms (configurable)".
const DefaultInterval = 100 * time.Millisecond

// StatusChange is dispatched to every callback for each task whose
// status differs from the prior tick's snapshot.
type StatusChange struct {
	TaskKey   string
	OldStatus domain.TaskStatus
	NewStatus domain.TaskStatus
	Timestamp time.Time
}

type Callback func(StatusChange)

// Observer polls store.Store.SnapshotStatuses on a fixed interval.
// start/stop are idempotent and safe to call concurrently (spec §4.8).
type Observer struct {
	store    store.Store
	log      *logging.Logger
	interval time.Duration

	mu        sync.Mutex
	snapshot  map[string]domain.TaskStatus
	callbacks []Callback
	cancel    context.CancelFunc
	running   bool
	done      chan struct{}
}

func New(s store.Store, log *logging.Logger, interval time.Duration) *Observer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Observer{store: s, log: log, interval: interval}
}

// Register adds a callback; safe to call before or after Start.
func (o *Observer) Register(cb Callback) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.callbacks = append(o.callbacks, cb)
}

// Start begins polling. Calling Start while already running is a no-op.
func (o *Observer) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.done = make(chan struct{})
	done := o.done
	o.mu.Unlock()

	go o.loop(loopCtx, done)
}

// Stop halts polling and waits for the in-flight tick to finish.
// Calling Stop when not running is a no-op.
func (o *Observer) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	done := o.done
	o.running = false
	o.mu.Unlock()

	cancel()
	<-done
}

func (o *Observer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(o.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			o.tick(ctx)
		}
	}
}

func (o *Observer) tick(ctx context.Context) {
	current, err := o.store.SnapshotStatuses(ctx)
	if err != nil {
		o.log.Warn("observer snapshot failed", "error", err.Error())
		return
	}

	o.mu.Lock()
	prior := o.snapshot
	cbs := make([]Callback, len(o.callbacks))
	copy(cbs, o.callbacks)
	o.snapshot = current
	o.mu.Unlock()

	if prior == nil {
		// First tick: establish the baseline, no events for it
		// (spec §4.8 "new client does not retroactively see prior transitions").
		return
	}

	now := time.Now().UTC()
	for key, newStatus := range current {
		oldStatus, existed := prior[key]
		if existed && oldStatus == newStatus {
			continue
		}
		if !existed {
			continue
		}
		change := StatusChange{TaskKey: key, OldStatus: oldStatus, NewStatus: newStatus, Timestamp: now}
		o.dispatch(cbs, change)
	}
}

// dispatch runs every callback, isolating panics and errors so one
// broken subscriber never aborts the tick or the others (spec §4.8
// "a callback that throws must not abort the tick").
func (o *Observer) dispatch(cbs []Callback, change StatusChange) {
	for _, cb := range cbs {
		o.safeCall(cb, change)
	}
}

func (o *Observer) safeCall(cb Callback, change StatusChange) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("observer callback panicked", "task_key", change.TaskKey, "panic", r)
		}
	}()
	cb(change)
}
