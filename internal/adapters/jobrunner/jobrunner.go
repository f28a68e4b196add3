// Package jobrunner runs the worker pool that claims test-run jobs and hands them to the orchestrator.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/healwright/internal/domain/model"
	obserrors "github.com/target/healwright/internal/observability/errors"
)

// Queue is the subset of service.QueueService the runner needs.
type Queue interface {
	ClaimNext(ctx context.Context, workerID string) (*model.Job, error)
	Ack(ctx context.Context, jobID string) (bool, error)
	Nack(ctx context.Context, jobID, reason string) (model.NackResult, error)
	Heartbeat(ctx context.Context, jobID string) (bool, error)
	Subscribe() (func(), <-chan struct{})
}

// Processor executes one claimed job. A nil error acks the job, anything else nacks it.
type Processor interface {
	Process(ctx context.Context, job *model.Job) error
}

// ErrorReporter forwards terminal failures and panics to an error tracker.
type ErrorReporter interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
	RecoverPanic(ctx context.Context, recovered any) error
}

type noopReporter struct{}

func (noopReporter) CaptureError(context.Context, error, map[string]string) {}

func (noopReporter) RecoverPanic(_ context.Context, recovered any) error {
	return fmt.Errorf("panic: %v", recovered)
}

// ErrLeaseLost cancels a job whose lease could not be renewed.
var ErrLeaseLost = errors.New("job lease lost")

// RunnerOptions configures the job runner.
type RunnerOptions struct {
	Queue     Queue     // Required
	Processor Processor // Required
	Reporter  ErrorReporter
	Logger    *slog.Logger

	// Concurrency is the number of workers; defaults to 1.
	Concurrency int
	// Lease is the claim duration; heartbeats renew it at a third of this interval. Defaults to 2m.
	Lease time.Duration
	// JobTimeout bounds a single attempt; defaults to 30m.
	JobTimeout time.Duration
	// IdlePoll bounds how long an idle worker waits for a notification before polling again.
	IdlePoll time.Duration
	// WorkerPrefix names workers as <prefix>-<n> in logs.
	WorkerPrefix string
}

// Runner is a fixed pool of workers, each processing one job at a time.
type Runner struct {
	queue      Queue
	processor  Processor
	reporter   ErrorReporter
	logger     *slog.Logger
	workers    int
	lease      time.Duration
	jobTimeout time.Duration
	idlePoll   time.Duration
	prefix     string
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("processor is required")
	}
	r := &Runner{
		queue:      opts.Queue,
		processor:  opts.Processor,
		reporter:   opts.Reporter,
		logger:     opts.Logger,
		workers:    opts.Concurrency,
		lease:      opts.Lease,
		jobTimeout: opts.JobTimeout,
		idlePoll:   opts.IdlePoll,
		prefix:     opts.WorkerPrefix,
	}
	if r.reporter == nil {
		r.reporter = noopReporter{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "job_runner")
	if r.workers <= 0 {
		r.workers = 1
	}
	if r.lease <= 0 {
		r.lease = 2 * time.Minute
	}
	if r.jobTimeout <= 0 {
		r.jobTimeout = 30 * time.Minute
	}
	if r.idlePoll <= 0 {
		r.idlePoll = 30 * time.Second
	}
	if r.prefix == "" {
		r.prefix = "worker"
	}
	return r, nil
}

// Run starts the workers and blocks until ctx is cancelled or a worker hits a queue error.
// Cancellation returns nil after in-flight jobs finish or observe the cancellation.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner",
		"workers", r.workers, "lease", r.lease, "job_timeout", r.jobTimeout)

	unsub, notify := r.queue.Subscribe()
	defer unsub()

	g, gctx := errgroup.WithContext(ctx)
	for i := range r.workers {
		workerID := fmt.Sprintf("%s-%d", r.prefix, i+1)
		g.Go(func() error { return r.workerLoop(gctx, workerID, notify) })
	}
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.InfoContext(ctx, "job runner stopped")
	return nil
}

func (r *Runner) workerLoop(ctx context.Context, workerID string, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.queue.ClaimNext(ctx, workerID)
		switch {
		case err == nil:
			r.processJob(ctx, workerID, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, notify) {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("%s: claim next job: %w", workerID, err)
		}
	}
	return nil
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	timer := time.NewTimer(r.idlePoll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case _, open := <-notify:
		return open || ctx.Err() == nil
	case <-timer.C:
		return true
	}
}

// processJob runs one attempt under the job timeout while a heartbeat renews the lease.
// Ack and nack use a context detached from shutdown so a finished attempt is always recorded.
// An attempt that fails because of shutdown is not nacked.
func (r *Runner) processJob(ctx context.Context, workerID string, job *model.Job) {
	logger := r.logger.With("worker_id", workerID, "job_id", job.ID, "test_run_id", job.TestRunID, "attempt", job.Attempt())
	start := time.Now()

	base, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	jobCtx, cancel := context.WithTimeoutCause(base, r.jobTimeout, fmt.Errorf("job exceeded %s", r.jobTimeout))
	defer cancel()
	stopHeartbeat := r.startHeartbeat(jobCtx, logger, job.ID, abort)

	err := r.runProcessor(jobCtx, job)
	stopHeartbeat()

	if errors.Is(context.Cause(jobCtx), ErrLeaseLost) {
		// Another worker may own the job now; settling it would clobber that attempt.
		logger.WarnContext(ctx, "abandoning job after lease loss", "error", err)
		return
	}

	if err != nil && ctx.Err() != nil {
		// Shutdown interrupted the attempt. The lease lapses and the job is requeued without
		// spending a retry.
		logger.InfoContext(ctx, "leaving interrupted job for redelivery", "error", err)
		return
	}

	settleCtx, settleCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer settleCancel()

	if err == nil {
		if ok, aerr := r.queue.Ack(settleCtx, job.ID); aerr != nil {
			logger.ErrorContext(ctx, "ack failed", "error", aerr)
		} else if !ok {
			logger.WarnContext(ctx, "ack ignored, job no longer running")
		}
		logger.InfoContext(ctx, "job completed", "duration_ms", time.Since(start).Milliseconds())
		return
	}
	if cause := context.Cause(jobCtx); cause != nil && !errors.Is(err, cause) {
		err = fmt.Errorf("%w: %w", err, cause)
	}

	res, nerr := r.queue.Nack(settleCtx, job.ID, err.Error())
	if nerr != nil {
		logger.ErrorContext(ctx, "nack failed", "error", nerr, "original_error", err)
		return
	}
	logger.WarnContext(ctx, "job attempt failed",
		"error", err, "error_class", obserrors.Classify(err), "terminal", res.Terminal,
		"duration_ms", time.Since(start).Milliseconds())
	if res.Terminal {
		r.reporter.CaptureError(ctx, err, map[string]string{
			"component":   "job_runner",
			"job_id":      job.ID,
			"test_run_id": job.TestRunID,
		})
	}
}

func (r *Runner) runProcessor(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = r.reporter.RecoverPanic(ctx, rec)
		}
	}()
	return r.processor.Process(ctx, job)
}

// startHeartbeat renews the lease until the returned stop func is called. A lost lease aborts
// the job with ErrLeaseLost.
func (r *Runner) startHeartbeat(
	ctx context.Context,
	logger *slog.Logger,
	jobID string,
	abort context.CancelCauseFunc,
) func() {
	hbCtx, stop := context.WithCancelCause(ctx)
	done := make(chan struct{})
	interval := r.lease / 3
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				ok, err := r.queue.Heartbeat(hbCtx, jobID)
				switch {
				case err != nil:
					if hbCtx.Err() == nil {
						logger.WarnContext(hbCtx, "heartbeat failed", "error", err)
					}
				case !ok:
					logger.WarnContext(hbCtx, "lease lost")
					abort(ErrLeaseLost)
					return
				}
			}
		}
	}()

	return func() {
		stop(nil)
		<-done
	}
}
