// Package reaper runs queue retention on an interval.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/healwright/config"
	"github.com/target/healwright/internal/core"
	"github.com/target/healwright/internal/data"
	"github.com/target/healwright/internal/observability/statsd"
	"github.com/target/healwright/internal/service"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	// Repo overrides the database-backed reaper repository.
	Repo core.ReaperRepository
	// Workspaces removes orphaned test workspaces; nil skips that step.
	Workspaces service.WorkspaceCleaner
	Metrics    statsd.Sink
}

// Runner owns a ReaperService and its loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// NewRunner wires the reaper service. Either DB or Repo must be set.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("database connection or reaper repository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	repo := opts.Repo
	if repo == nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:       repo,
		Config:     opts.Config,
		Workspaces: opts.Workspaces,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}
	return &Runner{reaper: svc, logger: opts.Logger.With("component", "reaper_runner")}, nil
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}

// RunOnce performs a single cleanup pass.
func (r *Runner) RunOnce(ctx context.Context) (service.CleanupReport, error) {
	return r.reaper.RunOnce(ctx)
}
