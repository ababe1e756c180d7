package decomposer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/decomposer"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
)

func TestFixtureDecomposerParsesTasksInOrder(t *testing.T) {
	d := decomposer.NewFixtureDecomposer("testdata")

	tasks, err := d.Decompose(context.Background(), "demo-spec")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	require.Equal(t, "TDD-01", tasks[0].TaskKey)
	require.Equal(t, domain.TaskPending, tasks[0].Status)
	require.Empty(t, tasks[0].DependsOn)

	require.Equal(t, "TDD-02", tasks[1].TaskKey)
	require.Equal(t, []string{"TDD-01"}, tasks[1].DependsOn)
}

func TestFixtureDecomposerRejectsUnknownDependency(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "bad-deps.yaml", `spec_id: bad-deps
tasks:
  - task_key: A
    phase: 1
    sequence: 1
    depends_on: [Z]
`)

	d := decomposer.NewFixtureDecomposer(dir)
	_, err := d.Decompose(context.Background(), "bad-deps")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown task_key")
}

func TestFixtureDecomposerRejectsSpecIDMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "wrong-id.yaml", "spec_id: other\ntasks: []\n")

	d := decomposer.NewFixtureDecomposer(dir)
	_, err := d.Decompose(context.Background(), "wrong-id")
	require.Error(t, err)
}

func TestFixtureDecomposerRejectsDuplicateTaskKey(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "dupes.yaml", `spec_id: dupes
tasks:
  - task_key: A
    phase: 1
    sequence: 1
  - task_key: A
    phase: 1
    sequence: 2
`)

	d := decomposer.NewFixtureDecomposer(dir)
	_, err := d.Decompose(context.Background(), "dupes")
	require.Error(t, err)
}

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
