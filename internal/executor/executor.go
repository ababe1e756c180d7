// Package executor defines the pluggable stage-execution boundary: the
// thing that actually runs RED/GREEN/VERIFY/FIX/REFACTOR/COMMIT for a
// task. Production wiring points this at a coding-agent SDK call
// (out of scope here, per spec.md Non-goals); tests and local runs use
// the deterministic Fake in this package.
package executor

import (
	"context"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
)

// StageInput is everything a stage execution needs to know about the
// task and, for a retried GREEN attempt, the prior failure's output.
type StageInput struct {
	Task             *domain.Task
	Stage            domain.Stage
	Attempt          int // 0 on first attempt, 2+ on retries (spec: "attempt" kwarg omitted on first try)
	PreviousFailure  string
}

type StageResult struct {
	Success  bool
	Output   string
	Error    string
	ExitCode int
}

// StageExecutor runs one pipeline stage for one task.
type StageExecutor interface {
	RunStage(ctx context.Context, in StageInput) (StageResult, error)
}
