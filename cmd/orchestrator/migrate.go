package main

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store/migrations"
)

func newMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply (or roll back) the postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewNop()
			boot, _ := loadBootstrap(log)

			db, err := sql.Open("pgx", boot.DatabaseURL)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			goose.SetBaseFS(migrations.FS)
			if err := goose.SetDialect("postgres"); err != nil {
				return fmt.Errorf("setting goose dialect: %w", err)
			}

			if down {
				return goose.Down(db, ".")
			}
			return goose.Up(db, ".")
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration instead of applying pending ones")
	return cmd
}
