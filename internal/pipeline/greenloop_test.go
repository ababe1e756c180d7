package pipeline_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/executor"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/pipeline"
)

func TestGreenLoopSucceedsFirstAttempt(t *testing.T) {
	task := &domain.Task{TaskKey: "TDD-01", DoneCriteria: "all tests pass"}
	fake := executor.NewFake()
	fake.ScriptPassAfter(task.TaskKey, 0)

	var attempts []int
	res, err := pipeline.Run(context.Background(), logging.NewNop(), fake, task, "RED output",
		pipeline.GreenLoopConfig{MaxAttempts: 2, RetryDelay: time.Millisecond, MaxAggregateTime: time.Hour},
		func(n int, _ executor.StageResult) { attempts = append(attempts, n) })

	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []int{1}, attempts)
}

func TestGreenLoopFailsThenSucceeds(t *testing.T) {
	task := &domain.Task{TaskKey: "TDD-02", DoneCriteria: "all tests pass"}
	fake := executor.NewFake()
	fake.ScriptPassAfter(task.TaskKey, 1) // passes on the 2nd attempt (0-based index 1)

	var attempts []int
	res, err := pipeline.Run(context.Background(), logging.NewNop(), fake, task, "RED output",
		pipeline.GreenLoopConfig{MaxAttempts: 2, RetryDelay: time.Millisecond, MaxAggregateTime: time.Hour},
		func(n int, _ executor.StageResult) { attempts = append(attempts, n) })

	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []int{1, 2}, attempts)
}

func TestGreenLoopExhaustsAllAttempts(t *testing.T) {
	task := &domain.Task{TaskKey: "TDD-03", DoneCriteria: "all tests pass"}
	fake := executor.NewFake()
	fake.ScriptForceFail(task.TaskKey)

	var attempts []int
	res, err := pipeline.Run(context.Background(), logging.NewNop(), fake, task, "RED output",
		pipeline.GreenLoopConfig{MaxAttempts: 3, RetryDelay: time.Millisecond, MaxAggregateTime: time.Hour},
		func(n int, _ executor.StageResult) { attempts = append(attempts, n) })

	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, []int{1, 2, 3}, attempts)
}

func TestGreenLoopRespectsAggregateTimeout(t *testing.T) {
	task := &domain.Task{TaskKey: "TDD-06", DoneCriteria: "all tests pass"}
	fake := executor.NewFake()
	fake.ScriptForceFail(task.TaskKey)

	var attempts []int
	res, err := pipeline.Run(context.Background(), logging.NewNop(), fake, task, "RED output",
		pipeline.GreenLoopConfig{MaxAttempts: 50, RetryDelay: 30 * time.Millisecond, MaxAggregateTime: 80 * time.Millisecond},
		func(n int, _ executor.StageResult) { attempts = append(attempts, n) })

	require.NoError(t, err)
	require.False(t, res.Success)
	require.Less(t, len(attempts), 50, "aggregate timeout must stop the loop well before max attempts")
}

func TestGreenLoopTruncatesPreviousFailure(t *testing.T) {
	task := &domain.Task{TaskKey: "TDD-07", DoneCriteria: strings.Repeat("X", 100000)}
	fake := executor.NewFake()
	fake.ScriptPassAfter(task.TaskKey, 1)
	rec := &recordingExecutor{inner: fake}

	res, err := pipeline.Run(context.Background(), logging.NewNop(), rec, task, "RED output",
		pipeline.GreenLoopConfig{MaxAttempts: 2, RetryDelay: time.Millisecond, MaxAggregateTime: time.Hour}, nil)

	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, rec.inputs, 2)
	require.Len(t, rec.inputs[1].PreviousFailure, pipeline.MaxTestOutputSize)
}

// recordingExecutor records every StageInput before forwarding it.
type recordingExecutor struct {
	inner  executor.StageExecutor
	inputs []executor.StageInput
}

func (r *recordingExecutor) RunStage(ctx context.Context, in executor.StageInput) (executor.StageResult, error) {
	r.inputs = append(r.inputs, in)
	return r.inner.RunStage(ctx, in)
}
