package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/satriyop/enteraksi/config"
	"github.com/satriyop/enteraksi/internal/infrastructure/persistence/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator) error {
				return m.Migrate(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator) error {
				return m.Rollback(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE:  withMigrator(printMigrationStatus),
		},
	)
	return cmd
}

// withMigrator opens the configured database for the duration of fn.
func withMigrator(fn func(cmd *cobra.Command, m *postgres.Migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		cfg, log, err := loadConfig(level)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if cfg.Database.Storage != config.StoragePostgres {
			return fmt.Errorf("migrate needs DB_STORAGE=%s, got %q", config.StoragePostgres, cfg.Database.Storage)
		}

		conn, err := connectPostgres(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := fn(cmd, postgres.NewMigrator(conn)); err != nil {
			return err
		}
		log.Info("migrate finished", "command", cmd.Name())
		return nil
	}
}

func printMigrationStatus(cmd *cobra.Command, m *postgres.Migrator) error {
	migrations, err := m.Status(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, mig := range migrations {
		applied := "pending"
		if mig.IsApplied {
			applied = mig.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", mig.Version, mig.Name, applied)
	}
	return w.Flush()
}
