// Package decomposer is the boundary between the orchestrator and the
// external collaborator that turns a product spec into Task rows
// (spec.md §1: "Decomposition of a product spec into task records
// (external 'decomposer' producing rows in the store)" — explicitly
// out of scope for this module, so only the interface plus a
// fixture-file-backed implementation live here).
package decomposer

import (
	"context"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
)

// Decomposer turns a spec identifier into an ordered list of tasks
// ready to be inserted into the store.
type Decomposer interface {
	Decompose(ctx context.Context, specID string) ([]*domain.Task, error)
}
