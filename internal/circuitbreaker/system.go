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

// SystemCircuit halts the whole run when the fraction of failing
// workers crosses SystemConfig.FailureThresholdPercent, monitored over
// a sliding time window rather than per-task consecutive counts.
// Grounded on circuit_breaker/system.py's SystemCircuitBreaker.
type SystemCircuit struct {
	mu sync.Mutex

	store store.Store
	log   *logging.Logger
	cfg   Config
	runID *uuid.UUID

	circuitID uuid.UUID
	state     domain.CircuitState
	version   int
	openedAt  *time.Time

	totalWorkers  int
	failedWorkers map[string]bool
	workerFailures map[string][]time.Time
	inFlightTasks map[uuid.UUID]bool
	tripSnapshot  map[string]any
}

const systemCircuitIdentifier = "system"

func NewSystemCircuit(s store.Store, log *logging.Logger, cfg Config, runID *uuid.UUID) *SystemCircuit {
	return &SystemCircuit{
		store: s, log: log, cfg: cfg, runID: runID,
		state:          domain.CircuitClosed,
		version:        1,
		failedWorkers:  map[string]bool{},
		workerFailures: map[string][]time.Time{},
		inFlightTasks:  map[uuid.UUID]bool{},
	}
}

func (c *SystemCircuit) SetTotalWorkers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalWorkers = n
}

func (c *SystemCircuit) RegisterInFlight(taskID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlightTasks[taskID] = true
}

func (c *SystemCircuit) CompleteInFlight(taskID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlightTasks, taskID)
}

func (c *SystemCircuit) InFlightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlightTasks)
}

func (c *SystemCircuit) failurePercentageLocked() float64 {
	if c.totalWorkers == 0 {
		return 0
	}
	return 100 * float64(len(c.failedWorkers)) / float64(c.totalWorkers)
}

func (c *SystemCircuit) loadLocked(ctx context.Context) error {
	row, err := c.store.GetCircuit(ctx, domain.CircuitLevelSystem, systemCircuitIdentifier)
	if err == store.ErrNotFound {
		snapshot, _ := json.Marshal(map[string]any{
			"failure_threshold_percent": c.cfg.System.FailureThresholdPercent,
			"monitoring_window_seconds": int(c.cfg.System.MonitoringWindow.Seconds()),
			"auto_recovery_enabled":     c.cfg.System.AutoRecoveryEnabled,
			"recovery_delay_seconds":    int(c.cfg.System.RecoveryDelay.Seconds()),
			"min_workers_for_threshold": c.cfg.System.MinWorkersForThreshold,
		})
		row, err = c.store.CreateCircuit(ctx, domain.CircuitLevelSystem, systemCircuitIdentifier, c.runID, snapshot)
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	c.circuitID = row.ID
	c.state = row.State
	c.version = row.Version
	c.openedAt = row.OpenedAt
	return nil
}

// ShouldHalt reports whether execution should stop accepting new
// tasks; an OPEN circuit past its recovery delay transitions to
// half-open and allows one more attempt, per system.py's should_halt.
func (c *SystemCircuit) ShouldHalt(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return false, err
	}
	switch c.state {
	case domain.CircuitClosed, domain.CircuitHalfOpen:
		return false, nil
	case domain.CircuitOpen:
		if c.shouldAttemptRecoveryLocked() {
			from := c.state
			c.state = domain.CircuitHalfOpen
			return false, c.persistLocked(ctx, domain.EventRecoveryStarted, from, c.state)
		}
		return true, nil
	}
	return false, nil
}

func (c *SystemCircuit) shouldAttemptRecoveryLocked() bool {
	if !c.cfg.System.AutoRecoveryEnabled {
		return false
	}
	if c.openedAt == nil {
		return true
	}
	return time.Since(*c.openedAt) >= c.cfg.System.RecoveryDelay
}

// RecordWorkerFailure tracks a worker failure in the sliding window
// and trips the circuit if the failure percentage crosses threshold
// (and MinWorkersForThreshold is met).
func (c *SystemCircuit) RecordWorkerFailure(ctx context.Context, workerID, reason string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return false, err
	}
	now := time.Now().UTC()
	c.workerFailures[workerID] = append(c.workerFailures[workerID], now)
	windowStart := now.Add(-c.cfg.System.MonitoringWindow)
	for id, times := range c.workerFailures {
		kept := times[:0]
		for _, t := range times {
			if !t.Before(windowStart) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(c.workerFailures, id)
			delete(c.failedWorkers, id)
			continue
		}
		c.workerFailures[id] = kept
		c.failedWorkers[id] = true
	}

	from := c.state
	tripped := false
	switch c.state {
	case domain.CircuitClosed:
		if c.shouldTripLocked() {
			c.tripLocked(now, reason)
			tripped = true
		}
	case domain.CircuitHalfOpen:
		c.tripLocked(now, reason)
		tripped = true
	}
	ev := domain.EventFailureRecorded
	if tripped {
		ev = domain.EventThresholdReached
	}
	c.log.Warn("system circuit worker failure", "worker_id", workerID, "failed_workers", len(c.failedWorkers), "total_workers", c.totalWorkers, "tripped", tripped)
	return tripped, c.persistLocked(ctx, ev, from, c.state)
}

func (c *SystemCircuit) shouldTripLocked() bool {
	if c.totalWorkers < c.cfg.System.MinWorkersForThreshold {
		return false
	}
	return c.failurePercentageLocked() >= c.cfg.System.FailureThresholdPercent
}

func (c *SystemCircuit) tripLocked(now time.Time, reason string) {
	c.state = domain.CircuitOpen
	c.openedAt = &now
	failed := make([]string, 0, len(c.failedWorkers))
	for w := range c.failedWorkers {
		failed = append(failed, w)
	}
	c.tripSnapshot = map[string]any{
		"reason":             reason,
		"failed_workers":     failed,
		"failure_percentage": c.failurePercentageLocked(),
		"total_workers":      c.totalWorkers,
	}
}

// RecordWorkerSuccess clears workerID's failure history and, if the
// circuit was testing recovery in half-open, closes it once the
// failure percentage drops back under threshold.
func (c *SystemCircuit) RecordWorkerSuccess(ctx context.Context, workerID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return false, err
	}
	delete(c.failedWorkers, workerID)
	delete(c.workerFailures, workerID)

	from := c.state
	closed := false
	if c.state == domain.CircuitHalfOpen && c.failurePercentageLocked() < c.cfg.System.FailureThresholdPercent {
		c.state = domain.CircuitClosed
		c.openedAt = nil
		c.tripSnapshot = nil
		closed = true
	}
	ev := domain.EventSuccessRecorded
	if closed {
		ev = domain.EventRecoverySucceeded
	}
	return closed, c.persistLocked(ctx, ev, from, c.state)
}

// Reset manually returns the circuit to closed, clearing all tracked
// failures (system.py's reset). The admin reset-circuit CLI does not
// call it; it rewrites the stored circuit row directly.
func (c *SystemCircuit) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return err
	}
	if c.state == domain.CircuitClosed {
		return nil
	}
	from := c.state
	c.state = domain.CircuitClosed
	c.failedWorkers = map[string]bool{}
	c.workerFailures = map[string][]time.Time{}
	c.tripSnapshot = nil
	c.openedAt = nil
	return c.persistLocked(ctx, domain.EventManualReset, from, c.state)
}

// WaitForInFlight blocks until in-flight tasks drain or timeout
// elapses, for graceful shutdown (system.py's wait_for_in_flight).
func (c *SystemCircuit) WaitForInFlight(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = c.cfg.System.GracefulShutdownTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.InFlightCount() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (c *SystemCircuit) persistLocked(ctx context.Context, eventType domain.CircuitEventType, from, to domain.CircuitState) error {
	var snapshot []byte
	if c.tripSnapshot != nil {
		snapshot, _ = json.Marshal(map[string]any{"trip_snapshot": c.tripSnapshot})
	}
	fields := store.CircuitFields{State: c.state}
	if c.state == domain.CircuitOpen && c.openedAt != nil {
		fields.OpenedAt = c.openedAt
	} else if c.state == domain.CircuitClosed {
		fields.ClearOpenedAt = true
	}
	if snapshot != nil {
		fields.ConfigSnapshot = snapshot
	}
	ok, err := c.store.UpdateCircuit(ctx, c.circuitID, c.version, fields)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Warn("system circuit version conflict, reloading")
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

func (c *SystemCircuit) State() domain.CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
