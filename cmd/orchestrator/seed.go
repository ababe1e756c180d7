package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/decomposer"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
)

func newSeedCmd() *cobra.Command {
	var specID string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "decompose a fixture spec and insert its tasks without starting a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewNop()
			boot, driver := loadBootstrap(log)
			s, err := openStore(driver, boot.DatabaseURL)
			if err != nil {
				return err
			}
			defer s.Close()

			tasks, err := decomposer.NewFixtureDecomposer(boot.FixtureSpecsDir).Decompose(cmd.Context(), specID)
			if err != nil {
				return fmt.Errorf("decomposing %s: %w", specID, err)
			}
			if err := s.InsertTasks(cmd.Context(), tasks); err != nil {
				return fmt.Errorf("inserting tasks: %w", err)
			}

			fmt.Printf("seeded %d tasks from %s\n", len(tasks), specID)
			return nil
		},
	}
	cmd.Flags().StringVar(&specID, "spec-id", "demo-spec", "fixture spec_id to decompose (matches <spec-id>.yaml under the fixture dir)")
	return cmd
}
