package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/tunedex/internal/index"
	"github.com/desertthunder/tunedex/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase writes a config file when none exists, then initializes the catalog and index.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err := shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
			} else {
				r.config = config
			}
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(shared.DSN(r.config.Database.Path, r.config.Database.BusyTimeoutMS))
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.logger.Info("initializing index", "backend", r.config.Index.Backend, "location", r.indexLocation())
	idx, err := index.New(ctx, r.config.Index)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer idx.Close()

	r.writePlain("✓ Catalog ready: %s\n", r.config.Database.Path)
	r.writePlain("✓ Index ready (%s): %s\n", r.config.Index.Backend, r.indexLocation())
	r.writePlainln("Next steps:")
	r.writePlain("1. Add songs with 'tunedex catalog add-song'\n")
	r.writePlain("2. Run 'tunedex rebuild' after loading an existing catalog\n")
	return nil
}
