package domain

import (
	"time"

	"github.com/google/uuid"
)

type Stage string

const (
	StageRed      Stage = "red"
	StageGreen    Stage = "green"
	StageVerify   Stage = "verify"
	StageFix      Stage = "fix"
	StageRefactor Stage = "refactor"
	StageReVerify Stage = "re_verify"
	StageCommit   Stage = "commit"
)

// Attempt is one execution of one pipeline stage for one task.
// attempt_number is 1-based and dense per (TaskID, Stage) — spec §3.
type Attempt struct {
	ID            uuid.UUID
	TaskID        uuid.UUID
	Stage         Stage
	AttemptNumber int
	Success       bool
	ErrorMessage  string
	ExitCode      int
	Output        string
	StartedAt     time.Time
	CompletedAt   time.Time
}
