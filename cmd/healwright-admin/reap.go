package main

import (
	"github.com/spf13/cobra"
	"github.com/target/healwright/internal/adapters/testexec"
	"github.com/target/healwright/internal/bootstrap"
)

func newReapCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Run one reaper pass and print what it cleaned",
		Long: `Fail stale pending jobs, prune finished jobs past retention and remove
orphaned workspaces, once. The reaper service does the same on a schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := env.connectDB()
			if err != nil {
				return err
			}
			defer env.closeDB(db)

			services := bootstrap.ServiceContainer{
				Repos: bootstrap.BuildRepositories(db, &env.cfg, env.logger),
				Runner: testexec.NewRunner(testexec.Options{
					BaseDir: env.cfg.Worker.WorkspaceDir,
					Logger:  env.logger,
				}),
				Observability: bootstrap.BuildObservability(env.logger, env.cfg.Observability),
			}
			defer services.Observability.Flush()

			runner, err := bootstrap.NewReaperRunner(env.cfg.Reaper, services, env.logger)
			if err != nil {
				return err
			}
			report, err := runner.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}
