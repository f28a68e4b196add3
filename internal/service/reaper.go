package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/healwright/config"
	"github.com/target/healwright/internal/core"
	"github.com/target/healwright/internal/domain/model"
	"github.com/target/healwright/internal/observability/metrics"
	"github.com/target/healwright/internal/observability/statsd"
)

// WorkspaceCleaner removes test workspaces left behind by crashed workers.
type WorkspaceCleaner interface {
	CleanOrphans(ctx context.Context, maxAge time.Duration) (int64, error)
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo       core.ReaperRepository // Required
	Config     config.ReaperConfig   // Required
	Workspaces WorkspaceCleaner      // Optional: skip workspace cleanup when nil
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// ReaperService enforces queue retention:
//   - pending jobs never claimed within PendingMaxAge fail along with their test runs.
//   - completed, failed and cancelled jobs are deleted after their max age; completed jobs are also
//     capped by count.
//   - orphaned workspaces are removed from disk.
type ReaperService struct {
	repo       core.ReaperRepository
	config     config.ReaperConfig
	workspaces WorkspaceCleaner
	logger     *slog.Logger
	metrics    statsd.Sink
}

// CleanupReport is the per-step row count of one cleanup pass.
type CleanupReport struct {
	FailedPending     int64 `json:"failedPending"`
	DeletedCompleted  int64 `json:"deletedCompleted"`
	PrunedCompleted   int64 `json:"prunedCompleted"`
	DeletedFailed     int64 `json:"deletedFailed"`
	DeletedCancelled  int64 `json:"deletedCancelled"`
	RemovedWorkspaces int64 `json:"removedWorkspaces"`
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Metrics
	if sink == nil {
		sink = statsd.Discard
	}
	cfg := opts.Config
	cfg.Sanitize()

	return &ReaperService{
		repo:       opts.Repo,
		config:     cfg,
		workspaces: opts.Workspaces,
		logger:     logger.With("component", "reaper_service"),
		metrics:    sink,
	}, nil
}

// Run cleans up immediately (after a small jitter) and then on every interval until ctx is
// cancelled. Cancellation returns nil.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(ctx, err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(ctx, err, "cleanup")
			}
		}
	}
}

// waitWithJitter delays up to 10% of the interval so replicas started together spread out.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

type cleanupStep struct {
	name  string
	fn    func(context.Context) (int64, error)
	count *int64
}

// RunOnce performs one cleanup pass. Every step runs even when an earlier one fails; the
// returned error joins the step errors.
func (s *ReaperService) RunOnce(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport
	steps := []cleanupStep{
		{name: "fail_pending", fn: s.failStalePendingJobs, count: &report.FailedPending},
		{name: "delete_completed", fn: s.deleteOld(model.JobStatusCompleted, s.config.CompletedMaxAge), count: &report.DeletedCompleted},
		{name: "prune_completed", fn: s.pruneCompletedJobs, count: &report.PrunedCompleted},
		{name: "delete_failed", fn: s.deleteOld(model.JobStatusFailed, s.config.FailedMaxAge), count: &report.DeletedFailed},
		{name: "delete_cancelled", fn: s.deleteOld(model.JobStatusCancelled, s.config.CancelledMaxAge), count: &report.DeletedCancelled},
		{name: "clean_workspaces", fn: s.cleanWorkspaces, count: &report.RemovedWorkspaces},
	}

	var (
		errs        []error
		allCanceled = true
	)
	for _, step := range steps {
		start := time.Now()
		count, err := step.fn(ctx)
		*step.count = count
		metrics.EmitCleanup(s.metrics, metrics.CleanupMetric{
			Step:     step.name,
			Count:    count,
			Duration: time.Since(start),
			Err:      suppressContextCancellation(err),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			allCanceled = allCanceled && isContextCancellation(err)
			continue
		}
		if count > 0 {
			s.logger.InfoContext(ctx, "cleanup step affected rows", "step", step.name, "count", count)
		}
	}

	if len(errs) == 0 {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
		return report, nil
	}
	joined := errors.Join(errs...)
	if allCanceled {
		return report, context.Canceled
	}
	return report, fmt.Errorf("cleanup failed: %w", joined)
}

// drain repeats a batched operation until it affects no rows.
func drain(ctx context.Context, batch func() (int64, error)) (int64, error) {
	var total int64
	for {
		count, err := batch()
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func (s *ReaperService) failStalePendingJobs(ctx context.Context) (int64, error) {
	return drain(ctx, func() (int64, error) {
		return s.repo.FailStalePendingJobs(ctx, s.config.PendingMaxAge, s.config.BatchSize)
	})
}

func (s *ReaperService) deleteOld(status model.JobStatus, maxAge time.Duration) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		return drain(ctx, func() (int64, error) {
			return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				Status:    status,
				MaxAge:    maxAge,
				BatchSize: s.config.BatchSize,
			})
		})
	}
}

func (s *ReaperService) pruneCompletedJobs(ctx context.Context) (int64, error) {
	if s.config.CompletedKeep <= 0 {
		return 0, nil
	}
	return drain(ctx, func() (int64, error) {
		return s.repo.PruneCompletedJobs(ctx, s.config.CompletedKeep, s.config.BatchSize)
	})
}

func (s *ReaperService) cleanWorkspaces(ctx context.Context) (int64, error) {
	if s.workspaces == nil {
		return 0, nil
	}
	return s.workspaces.CleanOrphans(ctx, s.config.WorkspaceMaxAge)
}

func (s *ReaperService) logCleanupError(ctx context.Context, err error, label string) {
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
