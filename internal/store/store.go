// Package store defines the durable, transactional persistence
// contract described in spec.md §4.1. Two implementations satisfy
// it: store/gormstore (GORM, sqlite for dev/test, postgres for prod)
// and store/postgres (pgx + sqlx, hand-written SQL for the
// optimistic-lock-sensitive primitives). Every write that can race
// returns a bool/sentinel rather than panicking — callers re-read and
// retry, per spec.md §7 and DESIGN NOTES "do not convert this into an
// exception".
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
)

// ErrVersionConflict names a lost optimistic update on a circuit row
// (spec §4.1). UpdateCircuit does not return it: both implementations
// report a version mismatch as (false, nil).
var ErrVersionConflict = errors.New("store: circuit version conflict")

// ErrClaimLost is returned by ReleaseTask when workerID no longer holds
// the task's claim. ClaimTask reports a lost claim race as (false, nil)
// instead (spec §4.1, §8 "no double-claim").
var ErrClaimLost = errors.New("store: claim lost")

var ErrNotFound = errors.New("store: not found")

// CircuitFields is the set of mutable fields update_circuit may change
// in one optimistic-locked write (spec §4.1).
type CircuitFields struct {
	State             domain.CircuitState
	FailureCount      *int
	SuccessCount      *int
	HalfOpenRequests  *int
	ExtensionsCount   *int
	OpenedAt          *time.Time
	ClearOpenedAt     bool
	LastFailureAt     *time.Time
	LastSuccessAt     *time.Time
	ConfigSnapshot    []byte
}

type TaskFilter struct {
	Status     string
	Phase      *int
	Complexity string
	Limit      int
	Offset     int
}

type TaskStats struct {
	Pending int
	Running int
	Passed  int
	Failed  int
	Total   int
}

// Store is the durable persistence contract. Each method is the unit
// of atomicity named in spec.md §4.1.
type Store interface {
	// Tasks / queue
	InsertTasks(ctx context.Context, tasks []*domain.Task) error
	GetTask(ctx context.Context, taskKey string) (*domain.Task, error)
	GetTaskByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*domain.Task, int, error)
	NextReadyTask(ctx context.Context) (*domain.Task, error)
	ClaimTask(ctx context.Context, taskID uuid.UUID, workerID string, lease time.Duration) (bool, error)
	ReleaseTask(ctx context.Context, taskID uuid.UUID, workerID string, outcome domain.ClaimOutcome) error
	ReclaimStale(ctx context.Context) (int, error)
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus) error
	RetryTask(ctx context.Context, taskKey string) (*domain.Task, error)
	TaskStats(ctx context.Context) (TaskStats, error)
	TaskProgress(ctx context.Context) (map[string]float64, error)
	SnapshotStatuses(ctx context.Context) (map[string]domain.TaskStatus, error)

	// Attempts
	NextAttemptNumber(ctx context.Context, taskID uuid.UUID, stage domain.Stage) (int, error)
	RecordAttempt(ctx context.Context, a *domain.Attempt) error
	ListAttempts(ctx context.Context, taskID uuid.UUID) ([]*domain.Attempt, error)

	// Workers
	RegisterWorker(ctx context.Context, w *domain.Worker) error
	Heartbeat(ctx context.Context, workerID string, taskID *uuid.UUID) error
	DeregisterWorker(ctx context.Context, workerID string) error
	ListWorkers(ctx context.Context) ([]*domain.Worker, error)

	// Circuits
	GetCircuit(ctx context.Context, level domain.CircuitLevel, identifier string) (*domain.CircuitBreaker, error)
	CreateCircuit(ctx context.Context, level domain.CircuitLevel, identifier string, runID *uuid.UUID, configSnapshot []byte) (*domain.CircuitBreaker, error)
	UpdateCircuit(ctx context.Context, id uuid.UUID, expectedVersion int, fields CircuitFields) (bool, error)
	RecordCircuitEvent(ctx context.Context, ev *domain.CircuitBreakerEvent) error
	ListCircuits(ctx context.Context, level string, state string) ([]*domain.CircuitBreaker, error)
	ListOpenCircuits(ctx context.Context) ([]*domain.CircuitBreaker, error)

	// Runs
	CreateRun(ctx context.Context, maxWorkers int) (*domain.ExecutionRun, error)
	CompleteRun(ctx context.Context, runID uuid.UUID, status domain.RunStatus) error
	GetRun(ctx context.Context, runID uuid.UUID) (*domain.ExecutionRun, error)
	ListRuns(ctx context.Context) ([]*domain.ExecutionRun, error)
	CurrentRun(ctx context.Context) (*domain.ExecutionRun, error)
	IncrementInvocations(ctx context.Context, runID uuid.UUID, delta int) error

	// Config
	GetConfig(ctx context.Context, key domain.ConfigKey) (int, bool, error)
	SetConfig(ctx context.Context, key domain.ConfigKey, value int) error

	// Static review + git stash audit (SPEC_FULL §3)
	RecordStaticReviewMetric(ctx context.Context, m *domain.StaticReviewMetric) error
	ListStaticReviewMetrics(ctx context.Context, taskID uuid.UUID) ([]*domain.StaticReviewMetric, error)
	RecordGitStash(ctx context.Context, e *domain.GitStashLogEntry) error
	ShadowSummaryForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.ShadowModeEntry, error)

	Close() error
}
