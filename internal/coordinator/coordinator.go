// Package coordinator drives a single execution run end-to-end
// (spec.md C10): decompose, start the observer/broadcaster bridge,
// spin up the circuit registry and worker pool, await completion, and
// tear everything down in reverse order.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/circuitbreaker"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/decomposer"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/executor"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/gitcoord"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/observer"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/queue"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/worker"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/workerpool"
)

// EventTaskStatusChanged is the broadcaster event type the
// observer-bridge callback publishes (spec §4.10 step 4).
const EventTaskStatusChanged = "task_status_changed"

// StopReason records where a run stopped short, per spec §4.10's
// failure semantics ("stop_reached = 'decompose'").
type StopReason string

const (
	StopNone       StopReason = ""
	StopDecompose  StopReason = "decompose"
	StopValidation StopReason = "validation"
)

// Summary is what a completed (or aborted) run reports back.
type Summary struct {
	RunID      string
	Status     domain.RunStatus
	StopReason StopReason
	Pool       workerpool.Result
}

type Config struct {
	SpecID        string
	MaxWorkers    int
	ClaimLease    time.Duration
	ObserverTick  time.Duration
	CircuitConfig circuitbreaker.Config
	WorkerConfig  worker.Config
}

// Coordinator bundles the collaborators a run needs; the caller
// (cmd/orchestrator) constructs these once per process and can reuse
// the Coordinator for multiple sequential runs.
type Coordinator struct {
	store      store.Store
	decomposer decomposer.Decomposer
	exec       executor.StageExecutor
	git        gitcoord.Coordinator
	log        *logging.Logger
	bus        broadcaster.Bus
}

func New(s store.Store, d decomposer.Decomposer, exec executor.StageExecutor, git gitcoord.Coordinator, bus broadcaster.Bus, log *logging.Logger) *Coordinator {
	return &Coordinator{store: s, decomposer: d, exec: exec, git: git, bus: bus, log: log}
}

// RunOnce drives one execution run to completion (spec §4.10).
func (c *Coordinator) RunOnce(ctx context.Context, cfg Config) (Summary, error) {
	run, err := c.store.CreateRun(ctx, cfg.MaxWorkers)
	if err != nil {
		return Summary{}, fmt.Errorf("coordinator: creating run: %w", err)
	}
	runID := run.ID

	tasks, err := c.decomposer.Decompose(ctx, cfg.SpecID)
	if err != nil {
		_ = c.store.CompleteRun(ctx, runID, domain.RunFailed)
		return Summary{RunID: runID.String(), Status: domain.RunFailed, StopReason: StopDecompose}, nil
	}
	if err := c.store.InsertTasks(ctx, tasks); err != nil {
		_ = c.store.CompleteRun(ctx, runID, domain.RunFailed)
		return Summary{RunID: runID.String(), Status: domain.RunFailed, StopReason: StopDecompose}, fmt.Errorf("coordinator: inserting tasks: %w", err)
	}

	obs := observer.New(c.store, c.log, cfg.ObserverTick)
	c.bridgeObserverToBroadcaster(obs)
	obs.Start(ctx)

	reg := circuitbreaker.NewRegistry(c.store, c.log, cfg.CircuitConfig, &runID)
	reg.System().SetTotalWorkers(cfg.MaxWorkers)

	q := queue.New(c.store, cfg.ClaimLease)
	factory := func(id string) *worker.Worker {
		return worker.New(id, c.store, q, reg, c.exec, c.git, c.log, cfg.WorkerConfig)
	}
	pool := workerpool.New(workerpool.Config{MaxWorkers: cfg.MaxWorkers, WorkerConfig: cfg.WorkerConfig}, q, c.log, factory)

	result, poolErr := pool.Run(ctx)

	obs.Stop()
	c.bus.Shutdown()

	status := domain.RunCompleted
	if poolErr != nil {
		status = domain.RunFailed
	}
	if err := c.store.CompleteRun(context.Background(), runID, status); err != nil {
		c.log.Warn("completing run failed", "run_id", runID.String(), "error", err.Error())
	}
	_ = c.store.IncrementInvocations(context.Background(), runID, result.TotalInvocations)

	return Summary{RunID: runID.String(), Status: status, Pool: result}, poolErr
}

// bridgeObserverToBroadcaster registers the callback described in
// spec §4.10 step 4. Publish failures are swallowed (spec: "never
// rolls back the DB mutation that triggered it"); obs.Stop() is what
// silences the bridge once a run ends, since callbacks can't be
// individually unregistered.
func (c *Coordinator) bridgeObserverToBroadcaster(obs *observer.Observer) {
	obs.Register(func(change observer.StatusChange) {
		c.bus.Publish(context.Background(), broadcaster.Event{
			Type: EventTaskStatusChanged,
			Payload: map[string]any{
				"task_key":   change.TaskKey,
				"old_status": string(change.OldStatus),
				"new_status": string(change.NewStatus),
				"timestamp":  change.Timestamp,
			},
		})
	})
}
