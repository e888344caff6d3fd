// AngelaMos | 2026
// migrate.go

package main

import (
	"github.com/spf13/cobra"

	"github.com/carterperez-dev/judge/session-backend/internal/core"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}

	cmd.AddCommand(
		migrateSubcommand(opts, "up", "Apply all pending migrations", core.MigrateUp),
		migrateSubcommand(opts, "down", "Roll back the latest migration", core.MigrateDown),
		migrateSubcommand(opts, "status", "Print migration status", core.MigrateStatus),
	)

	return cmd
}

func migrateSubcommand(
	opts *rootOptions,
	use, short string,
	direction core.MigrateDirection,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			db, err := core.NewDatabase(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // process exits right after

			return db.Migrate(cmd.Context(), direction)
		},
	}
}
