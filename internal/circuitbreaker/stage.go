package circuitbreaker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

// StageCircuit prevents a single stage from consuming unlimited
// retries for one task, tracking consecutive (or sliding-window)
// failures and opening once StageConfig.MaxFailures is reached.
// Grounded on circuit_breaker/stage.py's StageCircuitBreaker.
type StageCircuit struct {
	mu sync.Mutex

	store      store.Store
	log        *logging.Logger
	identifier string // "<task_key>:<stage>"
	cfg        Config
	runID      *uuid.UUID

	circuitID        uuid.UUID
	state            domain.CircuitState
	version          int
	failureCount     int
	successCount     int
	halfOpenRequests int
	openedAt         *time.Time
	lastFailureAt    *time.Time
	lastSuccessAt    *time.Time
	failureTimes     []time.Time // sliding-window mode only
}

func NewStageCircuit(s store.Store, log *logging.Logger, identifier string, cfg Config, runID *uuid.UUID) *StageCircuit {
	return &StageCircuit{store: s, log: log, identifier: identifier, cfg: cfg, runID: runID, state: domain.CircuitClosed, version: 1}
}

func (c *StageCircuit) Identifier() string { return c.identifier }

func (c *StageCircuit) loadLocked(ctx context.Context) error {
	row, err := c.store.GetCircuit(ctx, domain.CircuitLevelStage, c.identifier)
	if err == store.ErrNotFound {
		snapshot, _ := json.Marshal(map[string]any{
			"max_failures":             c.cfg.Stage.MaxFailures,
			"recovery_timeout_seconds": int(c.cfg.Stage.RecoveryTimeout.Seconds()),
			"skip_to_next_task":        c.cfg.Stage.SkipToNextTask,
		})
		row, err = c.store.CreateCircuit(ctx, domain.CircuitLevelStage, c.identifier, c.runID, snapshot)
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
	c.openedAt = row.OpenedAt
	c.lastFailureAt = row.LastFailureAt
	c.lastSuccessAt = row.LastSuccessAt
	return nil
}

// CheckAndAllow reports whether a stage attempt may proceed, reloading
// state first so a multi-worker deployment sees the latest trip
// (spec §4.3 "reload state to get latest ... multi-worker scenario").
func (c *StageCircuit) CheckAndAllow(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return false, err
	}
	switch c.state {
	case domain.CircuitClosed:
		return true, nil
	case domain.CircuitOpen:
		if c.shouldAttemptRecovery() {
			from := c.state
			c.state = domain.CircuitHalfOpen
			c.halfOpenRequests = 0
			return true, c.persistLocked(ctx, domain.EventRecoveryStarted, from, c.state)
		}
		return false, nil
	case domain.CircuitHalfOpen:
		if c.halfOpenRequests < 1 {
			c.halfOpenRequests++
			return true, c.persistLocked(ctx, domain.EventRecoveryStarted, c.state, c.state)
		}
		return false, nil
	}
	return false, nil
}

func (c *StageCircuit) shouldAttemptRecovery() bool {
	if c.openedAt == nil {
		return true
	}
	return time.Since(*c.openedAt) >= c.cfg.Stage.RecoveryTimeout
}

// RecordFailure records a failure and reports whether the circuit
// transitioned to open.
func (c *StageCircuit) RecordFailure(ctx context.Context, reason string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return false, err
	}
	now := time.Now().UTC()
	c.failureCount++
	c.lastFailureAt = &now
	c.failureTimes = append(c.failureTimes, now)
	if c.cfg.FailureMode == FailureModeSlidingWindow {
		c.pruneSlidingWindow(now)
	}

	from := c.state
	tripped := false
	switch c.state {
	case domain.CircuitClosed:
		if c.failureCount >= c.cfg.Stage.MaxFailures {
			tripped = true
			c.openCircuitLocked(now)
		}
	case domain.CircuitHalfOpen:
		tripped = true
		c.openCircuitLocked(now)
	}
	ev := domain.EventFailureRecorded
	if tripped {
		ev = domain.EventThresholdReached
	}
	if err := c.persistLocked(ctx, ev, from, c.state); err != nil {
		return false, err
	}
	c.log.Debug("stage circuit failure", "identifier", c.identifier, "failures", c.failureCount, "tripped", tripped)
	return tripped, nil
}

func (c *StageCircuit) openCircuitLocked(now time.Time) {
	c.state = domain.CircuitOpen
	c.openedAt = &now
	c.halfOpenRequests = 0
}

// RecordSuccess records a success and reports whether the circuit
// transitioned to closed.
func (c *StageCircuit) RecordSuccess(ctx context.Context) (bool, error) {
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
	switch c.state {
	case domain.CircuitHalfOpen:
		c.state = domain.CircuitClosed
		c.openedAt = nil
		c.halfOpenRequests = 0
		c.failureCount = 0
		closed = true
	case domain.CircuitClosed:
		if c.cfg.FailureMode == FailureModeConsecutive {
			c.failureCount = 0
		}
	}
	ev := domain.EventSuccessRecorded
	if closed {
		ev = domain.EventRecoverySucceeded
	}
	return closed, c.persistLocked(ctx, ev, from, c.state)
}

func (c *StageCircuit) pruneSlidingWindow(now time.Time) {
	windowStart := now.Add(-time.Duration(c.cfg.SlidingWindowSeconds) * time.Second)
	kept := c.failureTimes[:0]
	for _, t := range c.failureTimes {
		if !t.Before(windowStart) {
			kept = append(kept, t)
		}
	}
	c.failureTimes = kept
	c.failureCount = len(c.failureTimes)
}

// persistLocked writes the in-memory counters with an optimistic
// version check. On lost race (another worker updated first), it
// reloads the authoritative row rather than raising — per spec's "do
// not convert this into an exception" design note — and the caller's
// next CheckAndAllow will see the merged state.
func (c *StageCircuit) persistLocked(ctx context.Context, eventType domain.CircuitEventType, from, to domain.CircuitState) error {
	fc, sc, ho := c.failureCount, c.successCount, c.halfOpenRequests
	fields := store.CircuitFields{
		State:            c.state,
		FailureCount:     &fc,
		SuccessCount:     &sc,
		HalfOpenRequests: &ho,
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
		c.log.Warn("stage circuit version conflict, reloading", "identifier", c.identifier)
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

func (c *StageCircuit) State() domain.CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
