package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Ramsey-B/productsync/config"
	"github.com/Ramsey-B/productsync/pkg/database"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the Postgres schema migrations and exit",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "target-version",
				Usage: "Migrate to this version instead of the latest (overrides DB_MIGRATION_VERSION)",
			},
			&cli.IntFlag{
				Name:  "force",
				Usage: "Force this version before migrating, clearing a dirty state",
			},
		},
		Action: runMigrate,
	}
}

func runMigrate(c *cli.Context) error {
	cfg, logger, flush, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer flush()

	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s, got %q", config.StoreDriverPostgres, cfg.StoreDriver)
	}

	migrationCfg := cfg.Migration()
	if c.IsSet("target-version") {
		migrationCfg.Version = c.Uint("target-version")
	}
	if c.IsSet("force") {
		migrationCfg.Force = c.Int("force")
	}

	db, err := database.Open(cfg.Database(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(c.Context); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := database.NewMigrationService(logger, migrationCfg).MigratePostgres(db.DB.DB); err != nil {
		return err
	}
	logger.Info("Migrations applied")
	return nil
}
