package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"invofox/internal/app"
	pgstore "invofox/internal/repository/postgres"
)

var errNoPostgres = errors.New("migrations require the postgres storage backend")

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPostgres(cmd, func(a *app.App) error {
				if err := pgstore.Migrate(cmd.Context(), a.DB); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPostgres(cmd, func(a *app.App) error {
				return pgstore.MigrationStatus(cmd.Context(), a.DB)
			})
		},
	})

	return cmd
}

func withPostgres(cmd *cobra.Command, fn func(a *app.App) error) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.DB == nil {
		return errNoPostgres
	}
	return fn(a)
}
