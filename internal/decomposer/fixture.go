package decomposer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
)

// fixtureTask mirrors one entry of a decomposition fixture file. Field
// names match the YAML a human decomposition-tool author would write
// by hand, not domain.Task's Go field names.
type fixtureTask struct {
	TaskKey            string   `yaml:"task_key"`
	Title              string   `yaml:"title"`
	Goal               string   `yaml:"goal"`
	Phase              int      `yaml:"phase"`
	Sequence           int      `yaml:"sequence"`
	TestFile           string   `yaml:"test_file"`
	ImplFile           string   `yaml:"impl_file"`
	VerifyCommand      string   `yaml:"verify_command"`
	DoneCriteria       string   `yaml:"done_criteria"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria"`
	ModuleExports      []string `yaml:"module_exports"`
	DependsOn          []string `yaml:"depends_on"`
}

type fixtureFile struct {
	SpecID string        `yaml:"spec_id"`
	Tasks  []fixtureTask `yaml:"tasks"`
}

// FixtureDecomposer reads pre-authored YAML decomposition files from a
// directory, one file per spec_id, named "<spec_id>.yaml". It stands
// in for a real decomposition service so the rest of the system can be
// exercised end-to-end without an LLM in the loop.
type FixtureDecomposer struct {
	dir string
}

func NewFixtureDecomposer(dir string) *FixtureDecomposer {
	return &FixtureDecomposer{dir: dir}
}

func (d *FixtureDecomposer) Decompose(ctx context.Context, specID string) ([]*domain.Task, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	path := filepath.Join(d.dir, specID+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("decomposer: reading fixture %s: %w", path, err)
	}

	var ff fixtureFile
	if err := yaml.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("decomposer: parsing fixture %s: %w", path, err)
	}
	if ff.SpecID != "" && ff.SpecID != specID {
		return nil, fmt.Errorf("decomposer: fixture %s declares spec_id %q, expected %q", path, ff.SpecID, specID)
	}

	tasks := make([]*domain.Task, 0, len(ff.Tasks))
	seen := make(map[string]bool, len(ff.Tasks))
	for _, ft := range ff.Tasks {
		if ft.TaskKey == "" {
			return nil, fmt.Errorf("decomposer: fixture %s has a task with no task_key", path)
		}
		if seen[ft.TaskKey] {
			return nil, fmt.Errorf("decomposer: fixture %s declares task_key %q more than once", path, ft.TaskKey)
		}
		seen[ft.TaskKey] = true

		tasks = append(tasks, &domain.Task{
			TaskKey:            ft.TaskKey,
			Title:              ft.Title,
			Goal:               ft.Goal,
			Phase:              ft.Phase,
			Sequence:           ft.Sequence,
			SpecID:             specID,
			TestFile:           ft.TestFile,
			ImplFile:           ft.ImplFile,
			VerifyCommand:      ft.VerifyCommand,
			DoneCriteria:       ft.DoneCriteria,
			AcceptanceCriteria: ft.AcceptanceCriteria,
			ModuleExports:      ft.ModuleExports,
			DependsOn:          ft.DependsOn,
			Status:             domain.TaskPending,
		})
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return nil, fmt.Errorf("decomposer: fixture %s: task %q depends on unknown task_key %q", path, t.TaskKey, dep)
			}
		}
	}

	return tasks, nil
}

var _ Decomposer = (*FixtureDecomposer)(nil)
