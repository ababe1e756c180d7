// Package worker implements the single-actor task pipeline (spec.md
// C6): claim a task, walk it through RED -> GREEN -> VERIFY ->
// REFACTOR -> RE_VERIFY -> COMMIT via the external StageExecutor,
// consulting the circuit registry before every stage, and release the
// claim on completion or failure. Grounded on the teacher's
// internal/jobs/worker/worker.go run-loop shape (claim, dispatch,
// heartbeat, recover) generalized from a generic job queue to the
// fixed TDD stage pipeline.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/circuitbreaker"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/executor"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/gitcoord"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/pipeline"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/queue"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

// Pipeline is the fixed stage order every task walks (spec §4.6).
// It has no FIX stage: a VERIFY failure blocks the task like any other
// fatal stage failure. REFACTOR and RE_VERIFY are attempted but never
// block completion on failure (spec §4.6 "apply
// per-stage retry policy or fail the task" — refactor failures are
// non-fatal per the Open Question decision recorded in DESIGN.md).
var Pipeline = []domain.Stage{domain.StageRed, domain.StageGreen, domain.StageVerify, domain.StageRefactor, domain.StageReVerify, domain.StageCommit}

// Stats is a worker's tally of completed work over its lifetime,
// reported by the worker pool once the worker drains (spec §4.7
// WorkerStats).
type Stats struct {
	WorkerID       string
	TasksCompleted int
	TasksFailed    int
	Invocations    int
}

// Config bundles the knobs a Worker needs beyond its collaborators.
type Config struct {
	IdleSleep        time.Duration // between empty-queue polls and circuit-blocked polls
	HeartbeatEvery   time.Duration
	GreenLoop        pipeline.GreenLoopConfig
	MaxGreenAttempts int // mirrored into GreenLoop.MaxAttempts by New if zero there
}

func DefaultConfig() Config {
	return Config{
		IdleSleep:      500 * time.Millisecond,
		HeartbeatEvery: 15 * time.Second,
		GreenLoop: pipeline.GreenLoopConfig{
			MaxAttempts:      2,
			RetryDelay:       time.Second,
			MaxAggregateTime: pipeline.DefaultGreenRetryTimeoutSeconds * time.Second,
		},
	}
}

// Worker is a single concurrent actor (spec §4.6).
type Worker struct {
	ID       string
	store    store.Store
	queue    *queue.Queue
	registry *circuitbreaker.Registry
	exec     executor.StageExecutor
	git      gitcoord.Coordinator
	log      *logging.Logger
	cfg      Config

	stats Stats
}

func New(id string, s store.Store, q *queue.Queue, reg *circuitbreaker.Registry, exec executor.StageExecutor, git gitcoord.Coordinator, log *logging.Logger, cfg Config) *Worker {
	if cfg.GreenLoop.MaxAttempts == 0 {
		cfg.GreenLoop.MaxAttempts = cfg.MaxGreenAttempts
	}
	return &Worker{
		ID:       id,
		store:    s,
		queue:    q,
		registry: reg,
		exec:     exec,
		git:      git,
		log:      log.With("worker_id", id),
		cfg:      cfg,
		stats:    Stats{WorkerID: id},
	}
}

// Run is the worker's full lifecycle: register, run-loop until ctx is
// canceled, deregister. It never returns an error for a single failed
// task (spec: task failures are recorded and the worker moves on);
// it only returns non-nil if registration itself fails. An error from
// deregistration on exit is ignored.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	if err := w.store.RegisterWorker(ctx, &domain.Worker{ID: w.ID, Status: domain.WorkerIdle}); err != nil {
		return w.stats, err
	}
	defer func() {
		_ = w.store.DeregisterWorker(context.Background(), w.ID)
	}()

	stopHB := w.startHeartbeat(ctx)
	defer stopHB()

	for {
		select {
		case <-ctx.Done():
			return w.stats, nil
		default:
		}

		if blocked, wait := w.blockedByCircuits(ctx); blocked {
			w.sleep(ctx, wait)
			continue
		}

		task, err := w.queue.Claim(ctx, w.ID)
		if errors.Is(err, queue.ErrEmpty) {
			w.sleep(ctx, w.cfg.IdleSleep)
			continue
		}
		if err != nil {
			w.log.Warn("claim failed", "error", err.Error())
			w.sleep(ctx, w.cfg.IdleSleep)
			continue
		}

		w.stats.Invocations++
		w.runTask(ctx, task)
	}
}

func (w *Worker) blockedByCircuits(ctx context.Context) (bool, time.Duration) {
	halt, err := w.registry.System().ShouldHalt(ctx)
	if err == nil && halt {
		return true, w.cfg.IdleSleep
	}
	wc := w.registry.Worker(w.ID)
	allowed, err := wc.CheckAndAllow(ctx)
	if err == nil && !allowed {
		return true, w.cfg.IdleSleep
	}
	return false, 0
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// runTask walks task through Pipeline, releasing the claim and
// updating circuits exactly once at the end (spec §4.6 steps 3-6).
func (w *Worker) runTask(ctx context.Context, task *domain.Task) {
	sys := w.registry.System()
	sys.RegisterInFlight(task.ID)
	defer sys.CompleteInFlight(task.ID)

	if err := w.store.UpdateTaskStatus(ctx, task.ID, domain.TaskInProgress); err != nil {
		w.log.Warn("update task status failed", "task_key", task.TaskKey, "error", err.Error())
	}

	branch, err := w.git.CreateWorkerBranch(ctx, branchWorkerNumber(w.ID), task.TaskKey)
	if err != nil {
		w.log.Warn("creating worker branch failed", "task_key", task.TaskKey, "error", err.Error())
	}

	var previousFailure string
	for _, stage := range Pipeline {
		select {
		case <-ctx.Done():
			w.releaseAndRecord(ctx, task, domain.ClaimReleased, false)
			return
		default:
		}

		stageCircuit := w.registry.Stage(task.TaskKey + ":" + string(stage))
		allowed, err := stageCircuit.CheckAndAllow(ctx)
		if err != nil {
			w.log.Warn("stage circuit check failed", "task_key", task.TaskKey, "stage", string(stage), "error", err.Error())
		}
		if !allowed {
			w.log.Info("stage circuit open, blocking task", "task_key", task.TaskKey, "stage", string(stage))
			_ = w.store.UpdateTaskStatus(ctx, task.ID, domain.TaskBlocked)
			w.releaseAndRecord(ctx, task, domain.ClaimFailed, false)
			return
		}

		ok, _ := w.runStage(ctx, task, stage, stageCircuit, &previousFailure)
		if !nonFatalStage(stage) && !ok {
			_ = w.store.UpdateTaskStatus(ctx, task.ID, domain.TaskBlocked)
			w.releaseAndRecord(ctx, task, domain.ClaimFailed, false)
			return
		}
	}

	if branch != "" {
		if dirty, _ := w.git.HasUncommittedChanges(ctx); dirty {
			if _, err := w.git.CommitChanges(ctx, "feat("+task.TaskKey+"): pipeline complete"); err != nil {
				w.log.Warn("final commit failed", "task_key", task.TaskKey, "error", err.Error())
			}
		}
	}

	if err := w.store.UpdateTaskStatus(ctx, task.ID, domain.TaskComplete); err != nil {
		w.log.Warn("marking task complete failed", "task_key", task.TaskKey, "error", err.Error())
	}
	w.releaseAndRecord(ctx, task, domain.ClaimCompleted, true)
}

// nonFatalStage reports whether a failure on this stage should be
// tolerated rather than blocking the task (spec §4.6 "apply per-stage
// retry policy or fail the task" — REFACTOR/RE_VERIFY are best-effort
// per DESIGN.md's Open Question decision).
func nonFatalStage(s domain.Stage) bool {
	return s == domain.StageRefactor || s == domain.StageReVerify
}

func (w *Worker) runStage(ctx context.Context, task *domain.Task, stage domain.Stage, sc *circuitbreaker.StageCircuit, previousFailure *string) (bool, string) {
	attemptNum, err := w.store.NextAttemptNumber(ctx, task.ID, stage)
	if err != nil {
		w.log.Warn("next attempt number failed", "task_key", task.TaskKey, "stage", string(stage), "error", err.Error())
		attemptNum = 1
	}

	var res executor.StageResult
	if stage == domain.StageGreen {
		res, err = pipeline.Run(ctx, w.log, w.exec, task, *previousFailure, w.cfg.GreenLoop, func(n int, r executor.StageResult) {
			w.recordAttempt(ctx, task.ID, stage, n, r)
		})
	} else {
		res, err = w.exec.RunStage(ctx, executor.StageInput{Task: task, Stage: stage, PreviousFailure: *previousFailure})
		w.recordAttempt(ctx, task.ID, stage, attemptNum, res)
	}

	if err != nil {
		w.log.Warn("stage executor error", "task_key", task.TaskKey, "stage", string(stage), "error", err.Error())
		_, _ = sc.RecordFailure(ctx, err.Error())
		return false, ""
	}
	if res.Success {
		_, _ = sc.RecordSuccess(ctx)
		if stage == domain.StageRed || stage == domain.StageGreen {
			_ = w.store.UpdateTaskStatus(ctx, task.ID, domain.TaskPassing)
		}
		return true, res.Output
	}

	*previousFailure = res.Output
	_, _ = sc.RecordFailure(ctx, res.Error)
	return false, res.Output
}

func (w *Worker) recordAttempt(ctx context.Context, taskID uuid.UUID, stage domain.Stage, attemptNumber int, res executor.StageResult) {
	a := &domain.Attempt{
		TaskID:        taskID,
		Stage:         stage,
		AttemptNumber: attemptNumber,
		Success:       res.Success,
		ErrorMessage:  res.Error,
		ExitCode:      res.ExitCode,
		Output:        res.Output,
		StartedAt:     time.Now().UTC(),
		CompletedAt:   time.Now().UTC(),
	}
	if err := w.store.RecordAttempt(ctx, a); err != nil {
		w.log.Warn("record attempt failed", "task_key", taskID.String(), "stage", string(stage), "error", err.Error())
	}
}

func (w *Worker) releaseAndRecord(ctx context.Context, task *domain.Task, outcome domain.ClaimOutcome, success bool) {
	if err := w.queue.Release(ctx, task.ID, w.ID, outcome); err != nil {
		w.log.Warn("release failed", "task_key", task.TaskKey, "error", err.Error())
	}

	wc := w.registry.Worker(w.ID)
	sys := w.registry.System()
	if success {
		w.stats.TasksCompleted++
		_, _ = wc.RecordSuccess(ctx)
		_, _ = sys.RecordWorkerSuccess(ctx, w.ID)
	} else {
		w.stats.TasksFailed++
		_, _ = wc.RecordFailure(ctx, "task "+task.TaskKey+" failed")
		_, _ = sys.RecordWorkerFailure(ctx, w.ID, "task "+task.TaskKey+" failed")
	}
}

func (w *Worker) startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(w.cfg.HeartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				_ = w.store.Heartbeat(ctx, w.ID, nil)
			}
		}
	}()
	return func() { close(done) }
}

// branchWorkerNumber extracts a stable integer suffix for git branch
// naming ("worker-1/TDD-01"). An id that is not all digits, or that
// parses to 0, maps to a hash of the id in 1..9000.
func branchWorkerNumber(workerID string) int {
	n := 0
	for _, r := range workerID {
		if r < '0' || r > '9' {
			return hashWorkerID(workerID)
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return hashWorkerID(workerID)
	}
	return n
}

func hashWorkerID(workerID string) int {
	h := 0
	for _, r := range workerID {
		h = h*31 + int(r)
	}
	if h < 0 {
		h = -h
	}
	return h%9000 + 1
}
