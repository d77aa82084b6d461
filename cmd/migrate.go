package cmd

import (
	"context"
	"fmt"

	"github.com/rubiojr/datacatalog/pkg/config"
	"github.com/rubiojr/datacatalog/pkg/store"
	"github.com/urfave/cli/v3"
)

// MigrateCommand creates the migrate command
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations to the SQLite catalog and show their status",
		Action: func(ctx context.Context, c *cli.Command) error {
			return RunMigrations(ctx, c.String("config"), c.Bool("debug"))
		},
	}
}

// RunMigrations brings the SQLite schema up to date (exported for testing)
func RunMigrations(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath, debug)
	if err != nil {
		return err
	}
	if cfg.Backend != config.BackendSQLite {
		return fmt.Errorf("migrations only apply to the sqlite backend, configured backend is %s", cfg.Backend)
	}

	st, err := store.OpenSQLite(ctx, cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("opening sqlite store: %w", err)
	}
	defer closeStore(st)

	status, err := st.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	fmt.Printf("Database: %s\n", cfg.SQLite.Path)
	fmt.Printf("Applied migrations: %d\n", len(status.Applied))
	for _, migration := range status.Applied {
		appliedTime := "unknown"
		if migration.AppliedAt != nil {
			appliedTime = migration.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  ✓ %03d: %s (applied: %s)\n", migration.Version, migration.Name, appliedTime)
	}
	fmt.Printf("Pending migrations: %d\n", len(status.Pending))
	for _, migration := range status.Pending {
		fmt.Printf("  • %03d: %s\n", migration.Version, migration.Name)
	}
	return nil
}
