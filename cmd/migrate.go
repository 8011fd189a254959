package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacobschulman/stonewatch/internal/db"
	"github.com/jacobschulman/stonewatch/internal/migrate"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres migrations for the state table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.State.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			ctx, cancel := signalContext()
			defer cancel()

			d, err := db.Open(ctx, a.cfg.State.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			applied, err := migrate.Up(ctx, d)
			for _, f := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", f)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			}
			return nil
		},
	}
}
