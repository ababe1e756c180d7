package domain

import (
	"time"

	"github.com/google/uuid"
)

type WorkerStatus string

const (
	WorkerActive WorkerStatus = "active"
	WorkerIdle   WorkerStatus = "idle"
)

type Worker struct {
	ID              string
	Status          WorkerStatus
	CurrentTaskID   *uuid.UUID
	BranchName      string
	LastHeartbeat   time.Time
}

type ClaimOutcome string

const (
	ClaimCompleted ClaimOutcome = "completed"
	ClaimFailed    ClaimOutcome = "failed"
	ClaimTimeout   ClaimOutcome = "timeout"
	ClaimReleased  ClaimOutcome = "released"
)

// TaskClaim is an append-only audit row for every claim issued
// against a task (spec §3).
type TaskClaim struct {
	ID         uuid.UUID
	TaskID     uuid.UUID
	WorkerID   string
	ClaimedAt  time.Time
	ReleasedAt *time.Time
	Outcome    *ClaimOutcome
}
