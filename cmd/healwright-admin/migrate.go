package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/target/healwright/internal/bootstrap"
)

func newMigrateCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := env.connectDB()
			if err != nil {
				return err
			}
			defer env.closeDB(db)

			applied, err := bootstrap.RunMigrations(cmd.Context(), db, env.logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				_, _ = fmt.Fprintln(out, "database is up to date")
				return nil
			}
			for _, v := range applied {
				_, _ = fmt.Fprintf(out, "applied %s\n", v)
			}
			return nil
		},
	}
}
