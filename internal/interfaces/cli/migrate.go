package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/database/postgres"
)

type migrationState struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL record store schema",
		Long: `Apply, roll back or inspect the schema migrations of the PostgreSQL record
store.  The embedded migrations are used unless database.migration_path is set.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := GetCLIContext(cmd)
				if err != nil {
					return err
				}
				db := c.Config.Database
				if err := postgres.RunMigrations(postgres.DSN(db), db.MigrationPath, c.Logger); err != nil {
					return err
				}
				return printMigrationStatus(cmd)
			},
		},
		newMigrateDownCmd(),
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printMigrationStatus(cmd)
			},
		},
	)
	return cmd
}

func newMigrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			db := c.Config.Database
			if err := postgres.RollbackMigration(postgres.DSN(db), db.MigrationPath, steps); err != nil {
				return err
			}
			c.Logger.Info("migrations rolled back")
			return printMigrationStatus(cmd)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func printMigrationStatus(cmd *cobra.Command) error {
	c, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	db := c.Config.Database
	version, dirty, err := postgres.MigrationStatus(postgres.DSN(db), db.MigrationPath)
	if err != nil {
		return err
	}
	state := migrationState{Version: version, Dirty: dirty}
	return PrintResult(cmd, state, func(w io.Writer) {
		fmt.Fprintf(w, "schema version %d", state.Version)
		if state.Dirty {
			fmt.Fprint(w, " (dirty)")
		}
		fmt.Fprintln(w)
	})
}
