package circuitbreaker

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

// stageCircuitCacheSize bounds the number of in-memory StageCircuit
// instances kept warm at once. Stage circuits are keyed by
// "<task_key>:<stage>" and a large run can accumulate many more than
// fit comfortably in memory; the LRU evicts the coldest and the next
// access reloads from Store (SPEC_FULL §5 "LRU for stage circuits").
const stageCircuitCacheSize = 1000

// Registry is the single entry point workers and the run coordinator
// use to obtain circuit instances, keeping exactly one in-memory
// System circuit and per-identifier Worker/Stage circuits.
type Registry struct {
	store store.Store
	log   *logging.Logger
	cfg   Config
	runID *uuid.UUID

	mu       sync.Mutex
	stages   *lru.Cache[string, *StageCircuit]
	workers  map[string]*WorkerCircuit
	system   *SystemCircuit
	sf       singleflight.Group
}

func NewRegistry(s store.Store, log *logging.Logger, cfg Config, runID *uuid.UUID) *Registry {
	stages, _ := lru.New[string, *StageCircuit](stageCircuitCacheSize)
	return &Registry{
		store:   s,
		log:     log,
		cfg:     cfg,
		runID:   runID,
		stages:  stages,
		workers: make(map[string]*WorkerCircuit),
		system:  NewSystemCircuit(s, log, cfg, runID),
	}
}

// Stage returns the stage circuit for identifier, creating it if not
// cached. singleflight collapses concurrent first-accesses for the
// same identifier into one construction.
func (r *Registry) Stage(identifier string) *StageCircuit {
	r.mu.Lock()
	if c, ok := r.stages.Get(identifier); ok {
		r.mu.Unlock()
		return c
	}
	r.mu.Unlock()

	v, _, _ := r.sf.Do("stage:"+identifier, func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.stages.Get(identifier); ok {
			return c, nil
		}
		c := NewStageCircuit(r.store, r.log, identifier, r.cfg, r.runID)
		r.stages.Add(identifier, c)
		return c, nil
	})
	return v.(*StageCircuit)
}

func (r *Registry) Worker(workerID string) *WorkerCircuit {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.workers[workerID]; ok {
		return c
	}
	c := NewWorkerCircuit(r.store, r.log, workerID, r.cfg, r.runID)
	r.workers[workerID] = c
	return c
}

func (r *Registry) System() *SystemCircuit { return r.system }

// ListOpen returns every currently open circuit for the /circuits
// HTTP endpoint (spec §6), reading straight from Store rather than
// the in-memory cache so circuits evicted from the LRU still show up.
func (r *Registry) ListOpen(ctx context.Context) ([]*domain.CircuitBreaker, error) {
	return r.store.ListOpenCircuits(ctx)
}
