package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/target/healwright/internal/core"
	"github.com/target/healwright/internal/domain/model"
)

// StatusService answers "how is my test run doing" for dashboards and the CLI.
type StatusService struct {
	jobs core.JobRepository
	runs core.TestRunRepository
}

// NewStatusService constructs a StatusService.
func NewStatusService(jobs core.JobRepository, runs core.TestRunRepository) *StatusService {
	return &StatusService{jobs: jobs, runs: runs}
}

// GetStatus reports the queue state of the latest job and the results summary of the run.
// An unknown test run yields Found=false and no error.
func (s *StatusService) GetStatus(ctx context.Context, testRunID string) (model.RunStatus, error) {
	status := model.RunStatus{TestRunID: testRunID}

	run, err := s.runs.GetByID(ctx, testRunID)
	switch {
	case errors.Is(err, model.ErrTestRunNotFound):
		return status, nil
	case err != nil:
		return status, fmt.Errorf("get test run %s: %w", testRunID, err)
	}

	status.Found = true
	status.RunState = run.Status
	status.ResultsSummary = run.Summary
	status.LastError = run.ErrorMessage

	job, err := s.jobs.LatestByTestRun(ctx, testRunID)
	switch {
	case errors.Is(err, model.ErrJobNotFound):
		// Jobs are reaped before runs; the run alone still answers.
		status.QueueState = queueStateForRun(run.Status)
		if run.Status.Terminal() {
			status.Progress = 100
		}
		return status, nil
	case err != nil:
		return status, fmt.Errorf("get latest job for %s: %w", testRunID, err)
	}

	status.JobID = job.ID
	status.QueueState = job.Status
	status.Progress = job.Progress
	if status.LastError == nil && job.LastError != nil && job.Status != model.JobStatusCompleted {
		status.LastError = job.LastError
	}
	return status, nil
}

func queueStateForRun(s model.TestRunStatus) model.JobStatus {
	switch s {
	case model.TestRunPending:
		return model.JobStatusPending
	case model.TestRunRunning:
		return model.JobStatusRunning
	case model.TestRunFailed:
		return model.JobStatusFailed
	case model.TestRunCancelled:
		return model.JobStatusCancelled
	default:
		return model.JobStatusCompleted
	}
}
