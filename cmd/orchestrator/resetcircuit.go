package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

func newResetCircuitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-circuit <level> <identifier>",
		Short: "manually close a stage, worker, or system circuit (spec.md §6 POST /circuits/{id}/reset)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewNop()
			boot, driver := loadBootstrap(log)
			s, err := openStore(driver, boot.DatabaseURL)
			if err != nil {
				return err
			}
			defer s.Close()

			return resetCircuitByLevel(cmd.Context(), s, domain.CircuitLevel(args[0]), args[1])
		},
	}
}

func resetCircuitByLevel(ctx context.Context, s store.Store, level domain.CircuitLevel, identifier string) error {
	c, err := s.GetCircuit(ctx, level, identifier)
	if err != nil {
		return fmt.Errorf("looking up circuit %s/%s: %w", level, identifier, err)
	}

	zero := 0
	ok, err := s.UpdateCircuit(ctx, c.ID, c.Version, store.CircuitFields{
		State:         domain.CircuitClosed,
		FailureCount:  &zero,
		ClearOpenedAt: true,
	})
	if err != nil {
		return fmt.Errorf("resetting circuit %s/%s: %w", level, identifier, err)
	}
	if !ok {
		return fmt.Errorf("circuit %s/%s was modified concurrently, retry", level, identifier)
	}

	return s.RecordCircuitEvent(ctx, &domain.CircuitBreakerEvent{
		ID:        uuid.New(),
		CircuitID: c.ID,
		RunID:     c.RunID,
		EventType: domain.EventManualReset,
		FromState: c.State,
		ToState:   domain.CircuitClosed,
		Timestamp: time.Now().UTC(),
	})
}
