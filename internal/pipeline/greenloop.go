// Package pipeline implements the GREEN retry loop (spec.md C5): a
// bounded-attempts, aggregate-wall-clock-budget retry of the GREEN
// stage with feedback threading between attempts. Grounded on
// worker_pool.py's Worker._run_green_with_retry and
// tests/integration/test_green_retry_unit.py.
package pipeline

import (
	"context"
	"time"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/executor"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
)

// MaxTestOutputSize bounds how much of a failed attempt's output is
// threaded into the next attempt as previous_failure context
// (test_green_retry_unit.py's MAX_TEST_OUTPUT_SIZE).
const MaxTestOutputSize = 50000

// DefaultGreenRetryTimeoutSeconds is used when max_green_retry_time_seconds
// is absent from config (worker_pool.py's DEFAULT_GREEN_RETRY_TIMEOUT_SECONDS).
const DefaultGreenRetryTimeoutSeconds = 1800

// GreenLoopConfig is the resolved (already-clamped) config the loop
// needs for one run; callers read these from domain.KnownConfig via
// the config package before calling Run.
type GreenLoopConfig struct {
	MaxAttempts      int
	RetryDelay       time.Duration
	MaxAggregateTime time.Duration
}

// Run executes GREEN up to cfg.MaxAttempts times or until
// cfg.MaxAggregateTime elapses, whichever comes first, threading the
// truncated previous failure into each retry (spec §4.5 GREEN retry
// loop design notes).
func Run(ctx context.Context, log *logging.Logger, exec executor.StageExecutor, task *domain.Task, redOutput string, cfg GreenLoopConfig, onAttempt func(attemptNumber int, res executor.StageResult)) (executor.StageResult, error) {
	start := time.Now()
	previousFailure := redOutput
	var last executor.StageResult

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 && time.Since(start) >= cfg.MaxAggregateTime {
			log.Warn("green retry aggregate timeout exceeded", "task_key", task.TaskKey, "attempt", attempt-1)
			break
		}

		in := executor.StageInput{Task: task, Stage: domain.StageGreen, PreviousFailure: previousFailure}
		if attempt > 1 {
			in.Attempt = attempt
		}

		res, err := exec.RunStage(ctx, in)
		if err != nil {
			return res, err
		}
		last = res
		if onAttempt != nil {
			onAttempt(attempt, res)
		}

		if res.Success {
			return res, nil
		}
		previousFailure = truncate(res.Output, MaxTestOutputSize)

		if attempt < cfg.MaxAttempts && time.Since(start) < cfg.MaxAggregateTime {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(cfg.RetryDelay):
			}
		}
	}
	return last, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
