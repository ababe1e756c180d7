package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/config"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store/gormstore"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store/postgres"
)

// loadBootstrap builds the process bootstrap config, letting any
// viper-bound --database-url/--store-driver/--log-mode flag win over
// the plain environment read.
func loadBootstrap(log *logging.Logger) (config.Bootstrap, string) {
	b := config.LoadBootstrap(log)
	if v := viper.GetString("database_url"); v != "" {
		b.DatabaseURL = v
	}
	driver := viper.GetString("store_driver")
	if driver == "" {
		driver = config.GetEnv("STORE_DRIVER", "gorm", log)
	}
	if v := viper.GetString("log_mode"); v != "" {
		b.LogMode = v
	}
	return b, driver
}

// openStore opens the store.Store implementation named by driver
// ("gorm" or "postgres"), defaulting to the GORM/sqlite dev path when
// databaseURL looks like a sqlite path rather than a postgres DSN.
func openStore(driver, databaseURL string) (store.Store, error) {
	switch driver {
	case "postgres":
		s, err := postgres.Open(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return s, nil
	case "gorm", "":
		if looksLikeSQLitePath(databaseURL) {
			s, err := gormstore.OpenSQLite(databaseURL)
			if err != nil {
				return nil, fmt.Errorf("opening sqlite store: %w", err)
			}
			return s, nil
		}
		s, err := gormstore.OpenPostgres(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening gorm postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q (want gorm or postgres)", driver)
	}
}

func looksLikeSQLitePath(dsn string) bool {
	return !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://")
}
