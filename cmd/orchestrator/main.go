// Command orchestrator runs the TDD multi-worker task orchestrator
// (spec.md §1): decompose a spec into tasks, claim and execute them
// across a fixed worker pool, and serve the HTTP surface that reports
// progress while a run is in flight.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "TDD multi-worker task orchestrator",
	}

	root.PersistentFlags().String("database-url", "", "postgres DSN (overrides DATABASE_URL)")
	root.PersistentFlags().String("store-driver", "", "gorm or postgres (overrides STORE_DRIVER, default gorm)")
	root.PersistentFlags().String("log-mode", "", "development or production (overrides LOG_MODE)")
	_ = viper.BindPFlag("database_url", root.PersistentFlags().Lookup("database-url"))
	_ = viper.BindPFlag("store_driver", root.PersistentFlags().Lookup("store-driver"))
	_ = viper.BindPFlag("log_mode", root.PersistentFlags().Lookup("log-mode"))
	viper.SetEnvPrefix("orchestrator")
	viper.AutomaticEnv()

	root.AddCommand(newRunCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newResetCircuitCmd())
	root.AddCommand(newSeedCmd())

	return root
}
