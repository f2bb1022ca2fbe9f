package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"comanda/internal/infrastructure/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the fiscal schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd, postgres.MigrateUp)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			return runMigration(cmd, func(dsn string) (postgres.MigrationStatus, error) {
				return postgres.MigrateDown(dsn, steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd, postgres.MigrationVersion)
		},
	}

	migrateCmd.AddCommand(up, down, version)
	return migrateCmd
}

func runMigration(cmd *cobra.Command, fn func(dsn string) (postgres.MigrationStatus, error)) error {
	dsn, err := requireDatabaseURL()
	if err != nil {
		return err
	}
	st, err := fn(dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", st.Version, st.Dirty)
	return nil
}
