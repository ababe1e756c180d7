package domain

import (
	"time"

	"github.com/google/uuid"
)

type CircuitLevel string

const (
	CircuitLevelStage  CircuitLevel = "stage"
	CircuitLevelWorker CircuitLevel = "worker"
	CircuitLevelSystem CircuitLevel = "system"
)

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker is the persisted row backing every stage/worker/system
// circuit instance (spec §3). The in-memory circuit objects in
// internal/circuitbreaker read and write this row through Store,
// using Version for optimistic concurrency control.
type CircuitBreaker struct {
	ID                uuid.UUID
	Level             CircuitLevel
	Identifier        string
	State             CircuitState
	Version           int
	FailureCount      int
	SuccessCount      int
	HalfOpenRequests  int
	ExtensionsCount   int
	OpenedAt          *time.Time
	LastFailureAt     *time.Time
	LastSuccessAt     *time.Time
	LastStateChangeAt time.Time
	RunID             *uuid.UUID
	ConfigSnapshot    []byte // opaque JSON, see spec §9 DESIGN NOTES
}

type CircuitEventType string

const (
	EventFailureRecorded  CircuitEventType = "failure_recorded"
	EventSuccessRecorded  CircuitEventType = "success_recorded"
	EventThresholdReached CircuitEventType = "threshold_reached"
	EventRecoveryStarted  CircuitEventType = "recovery_started"
	EventRecoverySucceeded CircuitEventType = "recovery_succeeded"
	EventRecoveryFailed   CircuitEventType = "recovery_failed"
	EventExtensionApplied CircuitEventType = "extension_applied"
	EventManualReset      CircuitEventType = "manual_reset"
)

// CircuitBreakerEvent is an append-only audit row, one per transition
// or recorded outcome (spec §3, §4.4).
type CircuitBreakerEvent struct {
	ID           uuid.UUID
	CircuitID    uuid.UUID
	RunID        *uuid.UUID
	EventType    CircuitEventType
	FromState    CircuitState
	ToState      CircuitState
	ErrorContext []byte // opaque JSON
	Timestamp    time.Time
}
