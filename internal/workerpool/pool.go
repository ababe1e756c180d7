// Package workerpool spawns the fixed-size worker fleet (spec.md C7):
// exactly max_workers concurrent workers, a reaper goroutine that
// returns stale claims to pending, and a summary collected once every
// worker drains.
package workerpool

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/queue"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/worker"
)

// WorkerStats is re-exported so callers outside this package don't
// need to import internal/worker directly for the summary type.
type WorkerStats = worker.Stats

// Result is the pool's final report once every worker has drained
// (spec §4.7 PoolResult).
type Result struct {
	TasksCompleted   int
	TasksFailed      int
	TotalInvocations int
	WorkerStats      []WorkerStats
}

// DefaultStaleInterval is how often the reaper sweeps for expired
// claims (spec §4.7 "every stale-interval (default 10 minutes)").
const DefaultStaleInterval = 10 * time.Minute

type Config struct {
	MaxWorkers    int
	StaleInterval time.Duration
	WorkerConfig  worker.Config
}

func DefaultConfig(maxWorkers int) Config {
	return Config{MaxWorkers: maxWorkers, StaleInterval: DefaultStaleInterval, WorkerConfig: worker.DefaultConfig()}
}

// Factory constructs one worker given a stable id; the coordinator
// supplies this so the pool doesn't need to know about store/registry
// wiring directly.
type Factory func(id string) *worker.Worker

type Pool struct {
	cfg     Config
	q       *queue.Queue
	log     *logging.Logger
	factory Factory
}

func New(cfg Config, q *queue.Queue, log *logging.Logger, factory Factory) *Pool {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.StaleInterval <= 0 {
		cfg.StaleInterval = DefaultStaleInterval
	}
	return &Pool{cfg: cfg, q: q, log: log, factory: factory}
}

// Run spawns cfg.MaxWorkers workers plus a reaper goroutine and blocks
// until ctx is canceled and every worker has drained.
func (p *Pool) Run(ctx context.Context) (Result, error) {
	g, gctx := errgroup.WithContext(ctx)

	results := make([]WorkerStats, p.cfg.MaxWorkers)
	for i := 0; i < p.cfg.MaxWorkers; i++ {
		idx := i
		id := workerID(i)
		w := p.factory(id)
		g.Go(func() error {
			stats, err := w.Run(gctx)
			results[idx] = stats
			return err
		})
	}

	reaperDone := make(chan struct{})
	go p.runReaper(ctx, reaperDone)

	err := g.Wait()
	<-reaperDone

	res := Result{WorkerStats: results}
	for _, s := range results {
		res.TasksCompleted += s.TasksCompleted
		res.TasksFailed += s.TasksFailed
		res.TotalInvocations += s.Invocations
	}
	return res, err
}

func (p *Pool) runReaper(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(p.cfg.StaleInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.q.ReapStale(ctx)
			if err != nil {
				p.log.Warn("reap stale claims failed", "error", err.Error())
				continue
			}
			if n > 0 {
				p.log.Info("reclaimed stale claims", "count", n)
			}
		}
	}
}

func workerID(i int) string {
	return "worker-" + strconv.Itoa(i+1)
}
