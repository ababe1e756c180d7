package executor

import (
	"context"
	"fmt"
	"sync"

	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
)

// Fake is a deterministic StageExecutor for tests and local dry-runs.
// Each task_key is scripted with the attempt number on which GREEN
// should start passing; other stages always succeed unless scripted
// otherwise. Pass/fail is computed by diffing the task's done_criteria
// against a per-attempt "candidate" string that converges toward it,
// exercising go-diff's diffmatchpatch the way a real static-analysis
// pass/fail gate would compare expected vs. actual output.
type Fake struct {
	mu sync.Mutex
	dmp *diffmatchpatch.DiffMatchPatch

	passAfterAttempt map[string]int // task_key -> attempt number GREEN first passes (0 = first attempt)
	forceFail        map[string]bool
}

func NewFake() *Fake {
	return &Fake{
		dmp:              diffmatchpatch.New(),
		passAfterAttempt: make(map[string]int),
		forceFail:        make(map[string]bool),
	}
}

// ScriptPassAfter configures taskKey's GREEN stage to fail until
// attempt reaches passAt (0-based: 0 means first attempt passes).
func (f *Fake) ScriptPassAfter(taskKey string, passAt int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passAfterAttempt[taskKey] = passAt
}

// ScriptForceFail makes every attempt for taskKey fail, for exercising
// circuit-trip and exhausted-retry paths.
func (f *Fake) ScriptForceFail(taskKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceFail[taskKey] = true
}

func (f *Fake) RunStage(ctx context.Context, in StageInput) (StageResult, error) {
	select {
	case <-ctx.Done():
		return StageResult{}, ctx.Err()
	default:
	}

	f.mu.Lock()
	forceFail := f.forceFail[in.Task.TaskKey]
	passAt := f.passAfterAttempt[in.Task.TaskKey]
	f.mu.Unlock()

	attemptIdx := in.Attempt
	if attemptIdx == 0 {
		attemptIdx = 1
	}
	attemptIdx-- // 0-based

	expected := in.Task.DoneCriteria
	var candidate string
	switch {
	case forceFail:
		candidate = "<no implementation>"
	case attemptIdx >= passAt || in.Stage != domain.StageGreen:
		candidate = expected
	default:
		candidate = fmt.Sprintf("%s (partial, attempt %d)", expected, attemptIdx+1)
	}

	diffs := f.dmp.DiffMain(expected, candidate, false)
	clean := f.dmp.DiffCleanupSemantic(diffs)
	matches := true
	for _, d := range clean {
		if d.Type != diffmatchpatch.DiffEqual {
			matches = false
			break
		}
	}

	if matches {
		return StageResult{Success: true, Output: "stage passed: output matches done criteria", ExitCode: 0}, nil
	}
	return StageResult{
		Success:  false,
		Output:   f.dmp.DiffPrettyText(clean),
		Error:    fmt.Sprintf("stage %s attempt %d did not satisfy done criteria", in.Stage, attemptIdx+1),
		ExitCode: 1,
	}, nil
}

var _ StageExecutor = (*Fake)(nil)
