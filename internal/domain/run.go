package domain

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

type ExecutionRun struct {
	ID               uuid.UUID
	StartedAt        time.Time
	CompletedAt      *time.Time
	Status           RunStatus
	MaxWorkers       int
	TotalInvocations int
}

// StaticReviewMetric backs the blocked-static-review task status and
// the static_review_metrics table (spec §6; added in SPEC_FULL §3,
// grounded on ast_checker.py's quality-gate metrics).
type StaticReviewMetric struct {
	ID         uuid.UUID
	TaskID     uuid.UUID
	MetricName string
	Value      float64
	Threshold  float64
	Passed     bool
	RecordedAt time.Time
}

// GitStashLogEntry backs the git_stash_log table (spec §6; added in
// SPEC_FULL §3, grounded on test_git_coordinator.py).
type GitStashLogEntry struct {
	ID        uuid.UUID
	TaskID    uuid.UUID
	StashRef  string
	Reason    string
	Restored  bool
	CreatedAt time.Time
}

// ShadowModeEntry backs the v_shadow_mode_summary view named in
// spec.md §6 (SPEC_FULL §3). No component in this module runs a
// shadow strategy, so the view is always empty in practice; it exists
// so a future shadow-execution component has somewhere to write.
type ShadowModeEntry struct {
	TaskID        uuid.UUID
	Stage         Stage
	PrimaryResult bool
	ShadowResult  bool
	Agreed        bool
	RecordedAt    time.Time
}
