package circuitbreaker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

// WorkerCircuit pauses an individual worker after repeated task
// failures, extending the pause on a half-open retry failure up to
// WorkerConfig.MaxExtensions before becoming permanently open.
// Grounded on circuit_breaker/worker.py's WorkerCircuitBreaker.
type WorkerCircuit struct {
	mu sync.Mutex

	store    store.Store
	log      *logging.Logger
	workerID string
	cfg      Config
	runID    *uuid.UUID

	circuitID        uuid.UUID
	state            domain.CircuitState
	version          int
	failureCount     int
	successCount     int
	halfOpenRequests int
	extensionsCount  int
	openedAt         *time.Time
	lastFailureAt    *time.Time
	lastSuccessAt    *time.Time
}

func NewWorkerCircuit(s store.Store, log *logging.Logger, workerID string, cfg Config, runID *uuid.UUID) *WorkerCircuit {
	return &WorkerCircuit{store: s, log: log, workerID: workerID, cfg: cfg, runID: runID, state: domain.CircuitClosed, version: 1}
}

func (c *WorkerCircuit) identifier() string { return fmt.Sprintf("worker:%s", c.workerID) }

// IsPermanentlyOpen reports whether the pause can no longer be
// extended (worker.py's is_permanently_open).
func (c *WorkerCircuit) IsPermanentlyOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == domain.CircuitOpen && c.extensionsCount >= c.cfg.Worker.MaxExtensions
}

func (c *WorkerCircuit) loadLocked(ctx context.Context) error {
	row, err := c.store.GetCircuit(ctx, domain.CircuitLevelWorker, c.identifier())
	if err == store.ErrNotFound {
		snapshot, _ := json.Marshal(map[string]any{
			"max_consecutive_failures": c.cfg.Worker.MaxConsecutiveFailures,
			"pause_duration_seconds":  int(c.cfg.Worker.PauseDuration.Seconds()),
			"half_open_max_requests":  c.cfg.Worker.HalfOpenMaxRequests,
			"max_extensions":          c.cfg.Worker.MaxExtensions,
		})
		row, err = c.store.CreateCircuit(ctx, domain.CircuitLevelWorker, c.identifier(), c.runID, snapshot)
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	c.circuitID = row.ID
	c.state = row.State
	c.version = row.Version
	c.failureCount = row.FailureCount
	c.successCount = row.SuccessCount
	c.halfOpenRequests = row.HalfOpenRequests
	c.extensionsCount = row.ExtensionsCount
	c.openedAt = row.OpenedAt
	c.lastFailureAt = row.LastFailureAt
	c.lastSuccessAt = row.LastSuccessAt
	return nil
}

func (c *WorkerCircuit) CheckAndAllow(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return false, err
	}
	switch c.state {
	case domain.CircuitClosed:
		return true, nil
	case domain.CircuitOpen:
		if c.extensionsCount >= c.cfg.Worker.MaxExtensions {
			c.log.Warn("worker permanently paused", "worker_id", c.workerID)
			return false, nil
		}
		if c.shouldAttemptRecovery() {
			from := c.state
			c.state = domain.CircuitHalfOpen
			c.halfOpenRequests = 0
			return true, c.persistLocked(ctx, domain.EventRecoveryStarted, from, c.state)
		}
		return false, nil
	case domain.CircuitHalfOpen:
		if c.halfOpenRequests < c.cfg.Worker.HalfOpenMaxRequests {
			c.halfOpenRequests++
			return true, c.persistLocked(ctx, domain.EventRecoveryStarted, c.state, c.state)
		}
		return false, nil
	}
	return false, nil
}

func (c *WorkerCircuit) shouldAttemptRecovery() bool {
	if c.openedAt == nil {
		return true
	}
	return time.Since(*c.openedAt) >= c.cfg.Worker.PauseDuration
}

func (c *WorkerCircuit) RecordFailure(ctx context.Context, reason string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return false, err
	}
	now := time.Now().UTC()
	c.failureCount++
	c.lastFailureAt = &now

	from := c.state
	changed := false
	ev := domain.EventFailureRecorded
	switch c.state {
	case domain.CircuitClosed:
		if c.failureCount >= c.cfg.Worker.MaxConsecutiveFailures {
			c.state = domain.CircuitOpen
			c.openedAt = &now
			c.halfOpenRequests = 0
			changed = true
			ev = domain.EventThresholdReached
		}
	case domain.CircuitHalfOpen:
		c.state = domain.CircuitOpen
		c.openedAt = &now
		c.extensionsCount++
		c.halfOpenRequests = 0
		changed = true
		ev = domain.EventExtensionApplied
	}
	if err := c.persistLocked(ctx, ev, from, c.state); err != nil {
		return false, err
	}
	c.log.Warn("worker circuit failure", "worker_id", c.workerID, "failures", c.failureCount, "changed", changed, "extensions", c.extensionsCount)
	return changed, nil
}

func (c *WorkerCircuit) RecordSuccess(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return false, err
	}
	now := time.Now().UTC()
	c.successCount++
	c.lastSuccessAt = &now

	from := c.state
	closed := false
	ev := domain.EventSuccessRecorded
	switch c.state {
	case domain.CircuitHalfOpen:
		c.state = domain.CircuitClosed
		c.openedAt = nil
		c.halfOpenRequests = 0
		c.failureCount = 0
		c.extensionsCount = 0 // reset extensions on successful recovery
		closed = true
		ev = domain.EventRecoverySucceeded
	case domain.CircuitClosed:
		c.failureCount = 0
	}
	return closed, c.persistLocked(ctx, ev, from, c.state)
}

func (c *WorkerCircuit) persistLocked(ctx context.Context, eventType domain.CircuitEventType, from, to domain.CircuitState) error {
	fc, sc, ho, ext := c.failureCount, c.successCount, c.halfOpenRequests, c.extensionsCount
	fields := store.CircuitFields{
		State:            c.state,
		FailureCount:     &fc,
		SuccessCount:     &sc,
		HalfOpenRequests: &ho,
		ExtensionsCount:  &ext,
		LastFailureAt:    c.lastFailureAt,
		LastSuccessAt:    c.lastSuccessAt,
	}
	if c.state == domain.CircuitOpen && c.openedAt != nil {
		fields.OpenedAt = c.openedAt
	} else if c.state == domain.CircuitClosed {
		fields.ClearOpenedAt = true
	}
	ok, err := c.store.UpdateCircuit(ctx, c.circuitID, c.version, fields)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Warn("worker circuit version conflict, reloading", "worker_id", c.workerID)
		return c.loadLocked(ctx)
	}
	c.version++
	return c.store.RecordCircuitEvent(ctx, &domain.CircuitBreakerEvent{
		CircuitID: c.circuitID,
		RunID:     c.runID,
		EventType: eventType,
		FromState: from,
		ToState:   to,
		Timestamp: time.Now().UTC(),
	})
}

func (c *WorkerCircuit) State() domain.CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
