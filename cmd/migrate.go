package cmd

import (
	"fmt"

	"github.com/storegate/storegate/db"
	"github.com/storegate/storegate/internal/config"
	"github.com/storegate/storegate/internal/log"
)

// runMigrate applies pending database migrations and exits.
func runMigrate(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger.Info("running migrations", "database", cfg.PostgresDBName)
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations complete")
	return nil
}
