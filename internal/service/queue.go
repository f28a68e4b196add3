package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/target/healwright/internal/core"
	domainjob "github.com/target/healwright/internal/domain/job"
	"github.com/target/healwright/internal/domain/model"
	apperrors "github.com/target/healwright/internal/errors"
	"github.com/target/healwright/internal/observability/metrics"
	"github.com/target/healwright/internal/observability/statsd"
)

// ErrQueueUnavailable is returned by Enqueue when the queue backend cannot accept work.
var ErrQueueUnavailable = errors.New("job queue unavailable")

// EnqueueResult reports the outcome of an enqueue request.
type EnqueueResult struct {
	Queued bool   `json:"queued"`
	JobID  string `json:"jobId,omitempty"`
	// Duplicate is true when an active job for the same test run already existed.
	Duplicate bool `json:"duplicate"`
}

// QueueServiceOptions groups dependencies for QueueService.
type QueueServiceOptions struct {
	Jobs core.JobRepository     // Required
	Runs core.TestRunRepository // Required
	IDs  core.IDGenerator       // Optional: defaults to UUIDv7
	// Retry decides the attempt budget stamped on new jobs.
	Retry domainjob.RetryPolicy
	// Lease is the claim duration applied by ClaimNext and Heartbeat.
	Lease           time.Duration
	Notifier        domainjob.Notifier        // Optional: custom wake-up notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure the default notifier
	Metrics         statsd.Sink               // Optional
	Logger          *slog.Logger              // Optional
}

// QueueService is the durable job queue used by the API, the admin CLI and the worker pool.
type QueueService struct {
	jobs         core.JobRepository
	runs         core.TestRunRepository
	ids          core.IDGenerator
	retry        domainjob.RetryPolicy
	leaseSeconds int
	notifier     domainjob.Notifier
	metrics      statsd.Sink
	logger       *slog.Logger
}

// UUIDv7Generator produces time-ordered job identifiers.
type UUIDv7Generator struct{}

// NewID returns a new UUIDv7, falling back to a random UUID if the clock source fails.
func (UUIDv7Generator) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewQueueService constructs a QueueService.
func NewQueueService(opts QueueServiceOptions) (*QueueService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Runs == nil {
		return nil, errors.New("TestRunRepository is required")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Jobs
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	ids := opts.IDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	sink := opts.Metrics
	if sink == nil {
		sink = statsd.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &QueueService{
		jobs:         opts.Jobs,
		runs:         opts.Runs,
		ids:          ids,
		retry:        opts.Retry.Normalize(),
		leaseSeconds: domainjob.LeaseSeconds(opts.Lease),
		notifier:     notifier,
		metrics:      sink,
		logger:       logger.With("component", "queue_service"),
	}, nil
}

// MustNewQueueService constructs a QueueService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewQueueService(opts QueueServiceOptions) *QueueService {
	svc, err := NewQueueService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create QueueService: %v", err))
	}
	return svc
}

// Enqueue accepts a test-run request. It is idempotent per testRunId while a job is pending or
// running. Invalid requests yield a validation AppError, as do rows the database rejects on
// constraints; connectivity and timeout failures wrap ErrQueueUnavailable.
func (s *QueueService) Enqueue(ctx context.Context, req model.EnqueueRequest) (EnqueueResult, error) {
	if err := req.Validate(); err != nil {
		return EnqueueResult{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid test run request")
	}

	job, created, err := s.jobs.Enqueue(ctx, model.CreateJobParams{
		ID:         s.ids.NewID(),
		Request:    req,
		MaxRetries: s.retry.MaxAttempts,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "enqueue failed", "test_run_id", req.TestRunID, "error", err)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: metrics.TransitionEnqueued, Result: metrics.ResultError, Err: err,
		})
		if rejectedByStore(err) {
			return EnqueueResult{Queued: false}, err
		}
		return EnqueueResult{Queued: false}, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	result := metrics.ResultSuccess
	if !created {
		result = metrics.ResultNoop
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: metrics.TransitionEnqueued, Result: result})
	s.logger.InfoContext(ctx, "test run enqueued",
		"job_id", job.ID, "test_run_id", req.TestRunID, "project_id", req.ProjectID, "duplicate", !created)

	return EnqueueResult{Queued: true, JobID: job.ID, Duplicate: !created}, nil
}

// rejectedByStore reports whether the database refused the rows themselves, as opposed to being
// unreachable.
func rejectedByStore(err error) bool {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeForeignKey, apperrors.ErrCodeConflict:
		return true
	default:
		return false
	}
}

// ClaimNext leases the next eligible job. It returns model.ErrNoJobsAvailable when the queue is empty.
func (s *QueueService) ClaimNext(ctx context.Context, workerID string) (*model.Job, error) {
	job, err := s.jobs.ReserveNext(ctx, s.leaseSeconds)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: metrics.TransitionClaimed,
		Result:     metrics.ResultSuccess,
		Duration:   queueLatency(job),
	})
	s.logger.DebugContext(ctx, "job claimed",
		"job_id", job.ID, "test_run_id", job.TestRunID, "worker_id", workerID, "attempt", job.Attempt())
	return job, nil
}

// Ack completes a running job. false means the job was no longer running.
func (s *QueueService) Ack(ctx context.Context, jobID string) (bool, error) {
	ok, err := s.jobs.Complete(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("ack job %s: %w", jobID, err)
	}
	result := metrics.ResultSuccess
	if !ok {
		result = metrics.ResultNoop
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: metrics.TransitionCompleted, Result: result})
	return ok, nil
}

// Nack records a failed attempt. While attempts remain the job is rescheduled with exponential
// backoff and its test run returns to PENDING carrying the error; once exhausted both are FAILED.
func (s *QueueService) Nack(ctx context.Context, jobID, reason string) (model.NackResult, error) {
	if reason == "" {
		reason = "job failed"
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return model.NackResult{}, fmt.Errorf("load job %s: %w", jobID, err)
	}

	res, err := s.jobs.Fail(ctx, jobID, reason)
	if err != nil {
		return model.NackResult{}, fmt.Errorf("nack job %s: %w", jobID, err)
	}
	if !res.Updated {
		s.logger.WarnContext(ctx, "nack ignored, job no longer running", "job_id", jobID)
		return res, nil
	}

	if res.Terminal {
		if _, err := s.runs.Fail(ctx, job.TestRunID, reason); err != nil {
			return res, fmt.Errorf("fail test run %s: %w", job.TestRunID, err)
		}
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: metrics.TransitionFailed, Result: metrics.ResultError, Err: errors.New(reason),
		})
		s.logger.ErrorContext(ctx, "job failed permanently",
			"job_id", jobID, "test_run_id", job.TestRunID, "attempts", job.Attempt(), "error", reason)
		return res, nil
	}

	if err := s.runs.RecordError(ctx, job.TestRunID, reason); err != nil {
		return res, fmt.Errorf("record test run error %s: %w", job.TestRunID, err)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: metrics.TransitionRetried, Result: metrics.ResultError})
	attrs := []any{"job_id", jobID, "test_run_id", job.TestRunID, "attempt", job.Attempt(), "error", reason}
	if res.RetryAt != nil {
		attrs = append(attrs, "retry_at", res.RetryAt.UTC())
	}
	s.logger.WarnContext(ctx, "job rescheduled", attrs...)
	return res, nil
}

// Status returns a job by id.
func (s *QueueService) Status(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// Heartbeat extends the lease of a running job. false means the lease was lost.
func (s *QueueService) Heartbeat(ctx context.Context, jobID string) (bool, error) {
	ok, err := s.jobs.Heartbeat(ctx, jobID, s.leaseSeconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", jobID, err)
	}
	return ok, nil
}

// ReportProgress records progress (0-100) on a running job.
func (s *QueueService) ReportProgress(ctx context.Context, jobID string, pct int) error {
	if err := s.jobs.UpdateProgress(ctx, jobID, pct); err != nil {
		return fmt.Errorf("report progress for job %s: %w", jobID, err)
	}
	return nil
}

// Cancel withdraws a pending job and marks its test run CANCELLED. Running jobs are not
// interrupted; their terminal run transition becomes a no-op. false means nothing was pending.
func (s *QueueService) Cancel(ctx context.Context, testRunID string) (bool, error) {
	ok, err := s.jobs.CancelPending(ctx, testRunID)
	if err != nil {
		return false, fmt.Errorf("cancel test run %s: %w", testRunID, err)
	}
	if ok {
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: metrics.TransitionCancelled, Result: metrics.ResultSuccess})
		s.logger.InfoContext(ctx, "test run cancelled", "test_run_id", testRunID)
	}
	return ok, nil
}

// Stats returns job counts per status.
func (s *QueueService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// Subscribe registers for queue wake-ups. The returned func unsubscribes.
func (s *QueueService) Subscribe() (func(), <-chan struct{}) {
	return s.notifier.Subscribe()
}

// Close stops the notifier and releases all subscribers.
func (s *QueueService) Close() {
	s.notifier.StopAll()
}

func queueLatency(job *model.Job) time.Duration {
	if job == nil || job.StartedAt == nil {
		return 0
	}
	return job.StartedAt.Sub(job.ScheduledAt)
}
