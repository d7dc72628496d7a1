package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/postgres"
)

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			lgr := newLogger(cfg, "migrate")

			db, err := connectDatabase(cmd.Context(), cfg, lgr)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := postgres.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}
