package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/healwright/internal/core"
	"github.com/target/healwright/internal/domain/healing"
	"github.com/target/healwright/internal/domain/model"
	"github.com/target/healwright/internal/observability/metrics"
	"github.com/target/healwright/internal/observability/statsd"
)

// Stage is a step of job processing. Each stage maps to a fixed progress value.
type Stage string

const (
	StageClaimed    Stage = "CLAIMED"
	StageExecuting  Stage = "EXECUTING"
	StageDonePassed Stage = "DONE_PASSED"
	StageHealing    Stage = "HEALING"
	StagePublishing Stage = "PUBLISHING"
	StageDone       Stage = "DONE"
)

// Progress returns the job progress reported when the stage starts.
func (s Stage) Progress() int {
	switch s {
	case StageClaimed:
		return 5
	case StageExecuting:
		return 10
	case StageHealing:
		return 60
	case StagePublishing:
		return 85
	case StageDone, StageDonePassed:
		return 100
	default:
		return 0
	}
}

// FindingPublisher opens fix pull requests. *Publisher is the production implementation.
type FindingPublisher interface {
	Publish(ctx context.Context, finding *model.HealingFinding) PublishResult
}

// OrchestratorOptions groups dependencies for Orchestrator.
type OrchestratorOptions struct {
	Jobs      core.JobRepository     // Required: progress reporting
	Runs      core.TestRunRepository // Required
	Findings  core.FindingRepository // Required
	Projects  core.ProjectRepository // Required
	Runner    core.TestRunner        // Required
	Healer    Healer                 // Required
	Publisher FindingPublisher       // Required
	// FailureConcurrency bounds how many failures of one run are healed at once.
	FailureConcurrency int
	Metrics            statsd.Sink
	Logger             *slog.Logger
}

// Orchestrator processes one claimed job end to end: execute the tests, heal each failure,
// publish auto-healed fixes and record the run outcome.
type Orchestrator struct {
	jobs        core.JobRepository
	runs        core.TestRunRepository
	findings    core.FindingRepository
	projects    core.ProjectRepository
	runner      core.TestRunner
	healer      Healer
	publisher   FindingPublisher
	concurrency int
	metrics     statsd.Sink
	logger      *slog.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Runs == nil:
		return nil, errors.New("TestRunRepository is required")
	case opts.Findings == nil:
		return nil, errors.New("FindingRepository is required")
	case opts.Projects == nil:
		return nil, errors.New("ProjectRepository is required")
	case opts.Runner == nil:
		return nil, errors.New("TestRunner is required")
	case opts.Healer == nil:
		return nil, errors.New("Healer is required")
	case opts.Publisher == nil:
		return nil, errors.New("Publisher is required")
	}

	o := &Orchestrator{
		jobs:        opts.Jobs,
		runs:        opts.Runs,
		findings:    opts.Findings,
		projects:    opts.Projects,
		runner:      opts.Runner,
		healer:      opts.Healer,
		publisher:   opts.Publisher,
		concurrency: opts.FailureConcurrency,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
	if o.concurrency <= 0 {
		o.concurrency = 4
	}
	if o.metrics == nil {
		o.metrics = statsd.Discard
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

// MustNewOrchestrator constructs an Orchestrator and panics on error.
func MustNewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	o, err := NewOrchestrator(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create Orchestrator: %v", err))
	}
	return o
}

// Process runs a claimed job. A nil return means the job should be acked; an error means the
// attempt failed and the job should be nacked. Re-delivered jobs whose test run already reached a
// terminal state return nil without doing any work.
func (o *Orchestrator) Process(ctx context.Context, job *model.Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	logger := o.logger.With("job_id", job.ID, "test_run_id", job.TestRunID, "attempt", job.Attempt())
	start := time.Now()

	o.stage(ctx, logger, job, StageClaimed)
	running, err := o.runs.MarkRunning(ctx, job.TestRunID)
	if err != nil {
		return fmt.Errorf("mark test run running: %w", err)
	}
	if !running {
		logger.InfoContext(ctx, "test run already terminal, skipping")
		return nil
	}

	req, err := o.runRequest(ctx, job)
	if err != nil {
		return err
	}

	o.stage(ctx, logger, job, StageExecuting)
	result, err := o.runner.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("execute tests: %w", err)
	}

	summary := model.ResultsSummary{Passed: result.Passed, Failed: result.Failed, Total: result.Total}
	if result.Succeeded() {
		o.stage(ctx, logger, job, StageDonePassed)
		return o.finish(ctx, logger, model.FinishTestRunParams{ID: job.TestRunID, Status: model.TestRunPassed, Summary: summary}, start)
	}

	o.stage(ctx, logger, job, StageHealing)
	findings, err := o.healFailures(ctx, logger, job, result.Failures)
	if err != nil {
		return err
	}

	o.stage(ctx, logger, job, StagePublishing)
	autoHealed := o.publishAll(ctx, logger, findings)

	summary.Healed = autoHealed
	if summary.Failed < len(result.Failures) {
		summary.Failed = len(result.Failures)
	}
	o.stage(ctx, logger, job, StageDone)
	return o.finish(ctx, logger, model.FinishTestRunParams{
		ID:      job.TestRunID,
		Status:  model.OutcomeStatus(len(result.Failures), autoHealed),
		Summary: summary,
	}, start)
}

// runRequest resolves the repository to clone. The project's linked repository wins over the
// repository named in the job metadata; the owner's credential is optional for public repositories.
func (o *Orchestrator) runRequest(ctx context.Context, job *model.Job) (model.RunRequest, error) {
	project, err := o.projects.GetProject(ctx, job.ProjectID)
	if err != nil {
		return model.RunRequest{}, fmt.Errorf("load project %s: %w", job.ProjectID, err)
	}

	repoURL := strings.TrimSpace(job.Metadata.Repository)
	if project.RepositoryURL != nil && strings.TrimSpace(*project.RepositoryURL) != "" {
		repoURL = strings.TrimSpace(*project.RepositoryURL)
	}
	if repoURL == "" {
		return model.RunRequest{}, fmt.Errorf("project %s has no repository to test", job.ProjectID)
	}

	req := model.RunRequest{JobID: job.ID, RepositoryURL: repoURL, CommitRef: job.CommitRef}
	cred, err := o.projects.GetCredential(ctx, project.OwnerUserID, model.ProviderGitHub)
	switch {
	case err == nil:
		req.AuthToken = cred.AccessToken
	case !errors.Is(err, model.ErrCredentialNotFound):
		return model.RunRequest{}, fmt.Errorf("load credential: %w", err)
	}
	return req, nil
}

// healFailures analyzes every failure with bounded concurrency. A failure that cannot be healed
// marks only its own finding FAILED; only finding persistence errors abort the job.
func (o *Orchestrator) healFailures(
	ctx context.Context,
	logger *slog.Logger,
	job *model.Job,
	failures []model.Failure,
) ([]*model.HealingFinding, error) {
	out := make([]*model.HealingFinding, len(failures))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, failure := range failures {
		g.Go(func() error {
			f, err := o.healOne(gctx, logger, job, failure)
			if err != nil {
				return err
			}
			mu.Lock()
			out[i] = f
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) healOne(
	ctx context.Context,
	logger *slog.Logger,
	job *model.Job,
	failure model.Failure,
) (*model.HealingFinding, error) {
	finding, err := o.findings.CreateIfAbsent(ctx, model.CreateFindingParams{
		ID:        model.FindingID(job.TestRunID, failure),
		TestRunID: job.TestRunID,
		ProjectID: job.ProjectID,
		Failure:   failure,
	})
	if err != nil {
		return nil, fmt.Errorf("create finding for %q: %w", failure.TestName, err)
	}
	if finding.Decision.Terminal() {
		// Decided on an earlier attempt.
		return finding, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := model.DecideFindingParams{ID: finding.ID}
	suggestion, healErr := o.safeHeal(ctx, failure)
	if healErr != nil {
		logger.WarnContext(ctx, "healing failed", "finding_id", finding.ID, "test", failure.TestName, "error", healErr)
		params.Decision = model.DecisionFailed
	} else {
		params.Suggestion = suggestion
		params.Decision = healing.DecideSuggestion(suggestion)
	}

	decided, err := o.findings.Decide(ctx, params)
	if errors.Is(err, model.ErrFindingDecided) {
		if decided, err = o.findings.GetByID(ctx, finding.ID); err == nil {
			return decided, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decide finding %s: %w", finding.ID, err)
	}

	metrics.EmitHealingDecision(o.metrics, string(decided.Decision), string(suggestion.Source))
	logger.InfoContext(ctx, "finding decided",
		"finding_id", decided.ID, "test", failure.TestName, "selector", failure.FailedSelector,
		"decision", decided.Decision, "confidence", suggestion.Confidence, "source", suggestion.Source)
	return decided, nil
}

// safeHeal converts a healer panic into an error so one bad failure cannot take down the job.
func (o *Orchestrator) safeHeal(ctx context.Context, failure model.Failure) (s model.Suggestion, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("healer panic: %v", r)
		}
	}()
	s = o.healer.Heal(ctx, healing.Context{
		FailedSelector: failure.FailedSelector,
		ErrorMessage:   failure.ErrorMessage,
		DOMSnapshot:    failure.DOMSnapshot(),
	})
	return s, nil
}

// publishAll publishes every HEALED_AUTO finding and returns how many were auto-healed.
// Publish outcomes never change the run status.
func (o *Orchestrator) publishAll(ctx context.Context, logger *slog.Logger, findings []*model.HealingFinding) int {
	autoHealed := 0
	for _, f := range findings {
		if f == nil || f.Decision != model.DecisionHealedAuto {
			continue
		}
		autoHealed++
		res := o.publisher.Publish(ctx, f)
		if res.Opened {
			continue
		}
		logger.InfoContext(ctx, "pull request not opened", "finding_id", f.ID, "reason", res.Reason)
	}
	return autoHealed
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, params model.FinishTestRunParams, start time.Time) error {
	ok, err := o.runs.Finish(ctx, params)
	if err != nil {
		return fmt.Errorf("finish test run: %w", err)
	}
	if !ok {
		logger.InfoContext(ctx, "test run reached a terminal state concurrently", "status", params.Status)
		return nil
	}
	logger.InfoContext(ctx, "test run finished",
		"status", params.Status,
		"passed", params.Summary.Passed,
		"failed", params.Summary.Failed,
		"healed", params.Summary.Healed,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// stage reports progress. Progress is advisory, so errors are only logged.
func (o *Orchestrator) stage(ctx context.Context, logger *slog.Logger, job *model.Job, s Stage) {
	if err := o.jobs.UpdateProgress(ctx, job.ID, s.Progress()); err != nil {
		logger.WarnContext(ctx, "failed to report progress", "stage", s, "error", err)
		return
	}
	logger.DebugContext(ctx, "stage", "stage", s, "progress", s.Progress())
}
