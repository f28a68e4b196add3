package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/target/healwright/internal/bootstrap"
	"github.com/target/healwright/internal/domain/model"
	"github.com/target/healwright/internal/service"
)

type enqueueFlags struct {
	projectID string
	commitRef string
	testRunID string
	branch    string
	message   string
	author    string
	repo      string
}

func newEnqueueCmd(env *cliEnv) *cobra.Command {
	var f enqueueFlags
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a test run for a project at a commit",
		Long: `Queue a test run the same way POST /api/test-runs does.

Re-enqueueing an existing test run id reports a duplicate instead of
creating a second job.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := env.connectDB()
			if err != nil {
				return err
			}
			defer env.closeDB(db)

			repos := bootstrap.BuildRepositories(db, &env.cfg, env.logger)
			queue, err := service.NewQueueService(service.QueueServiceOptions{
				Jobs:   repos.Jobs,
				Runs:   repos.Runs,
				Retry:  bootstrap.RetryPolicy(env.cfg.Worker),
				Lease:  env.cfg.Worker.JobLease,
				Logger: env.logger,
			})
			if err != nil {
				return fmt.Errorf("queue service: %w", err)
			}
			defer queue.Close()

			res, err := queue.Enqueue(cmd.Context(), model.EnqueueRequest{
				ProjectID: f.projectID,
				CommitRef: f.commitRef,
				TestRunID: f.testRunID,
				Metadata: model.JobMetadata{
					Branch:        f.branch,
					CommitMessage: f.message,
					CommitAuthor:  f.author,
					Repository:    f.repo,
				},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&f.projectID, "project", "", "project id (required)")
	cmd.Flags().StringVar(&f.commitRef, "commit", "", "commit ref to test (required)")
	cmd.Flags().StringVar(&f.testRunID, "run-id", "", "test run id (required)")
	cmd.Flags().StringVar(&f.branch, "branch", "", "branch the commit belongs to")
	cmd.Flags().StringVar(&f.message, "message", "", "commit message")
	cmd.Flags().StringVar(&f.author, "author", "", "commit author")
	cmd.Flags().StringVar(&f.repo, "repo", "", "repository (owner/name)")
	for _, name := range []string{"project", "commit", "run-id"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newStatusCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "status <test-run-id>",
		Short: "Show the queue and run status of a test run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := env.connectDB()
			if err != nil {
				return err
			}
			defer env.closeDB(db)

			repos := bootstrap.BuildRepositories(db, &env.cfg, env.logger)
			st, err := service.NewStatusService(repos.Jobs, repos.Runs).GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err = printJSON(cmd.OutOrStdout(), st); err != nil {
				return err
			}
			if !st.Found {
				return fmt.Errorf("test run %s not found", args[0])
			}
			return nil
		},
	}
}
