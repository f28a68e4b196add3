// Package model defines the core data types shared by the healwright queue, worker and API.
package model

import (
	"errors"
	"strings"
	"time"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be claimed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a worker holds the lease on the job.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job was acked.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job exhausted its attempts.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was withdrawn before a worker claimed it.
	JobStatusCancelled JobStatus = "cancelled"
)

// Job errors.
var (
	// ErrNoJobsAvailable is returned when no jobs are available for claiming.
	ErrNoJobsAvailable = errors.New("no jobs available")
	// ErrJobNotFound is returned when a job lookup misses.
	ErrJobNotFound = errors.New("job not found")
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Active reports whether a job in this status still blocks a new enqueue for the same test run.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// JobMetadata is the commit context carried alongside a test-run request.
type JobMetadata struct {
	Branch        string `json:"branch,omitempty"`
	CommitMessage string `json:"commitMessage,omitempty"`
	CommitAuthor  string `json:"commitAuthor,omitempty"`
	Repository    string `json:"repository,omitempty"`
}

// Job is a durable unit of work: run the tests of a project at a commit and heal what broke.
type Job struct {
	ID             string      `json:"id"                         db:"id"`
	TestRunID      string      `json:"test_run_id"                db:"test_run_id"`
	ProjectID      string      `json:"project_id"                 db:"project_id"`
	CommitRef      string      `json:"commit_ref"                 db:"commit_ref"`
	Metadata       JobMetadata `json:"metadata"                   db:"metadata"`
	Status         JobStatus   `json:"status"                     db:"status"`
	Progress       int         `json:"progress"                   db:"progress"`
	ScheduledAt    time.Time   `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"     db:"completed_at"`
	RetryCount     int         `json:"retry_count"                db:"retry_count"`
	MaxRetries     int         `json:"max_retries"                db:"max_retries"`
	LastError      *string     `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time  `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time   `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"                 db:"updated_at"`
}

// Attempt returns the 1-based attempt number of the current execution.
func (j *Job) Attempt() int {
	if j == nil {
		return 0
	}
	return j.RetryCount + 1
}

// EnqueueRequest asks for a test run to be executed.
type EnqueueRequest struct {
	ProjectID string      `json:"projectId"`
	CommitRef string      `json:"commitRef"`
	TestRunID string      `json:"testRunId"`
	Metadata  JobMetadata `json:"metadata"`
}

// Validate validates the EnqueueRequest fields.
func (r *EnqueueRequest) Validate() error {
	if r == nil {
		return errors.New("enqueue request is required")
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		return errors.New("projectId is required")
	}
	if strings.TrimSpace(r.CommitRef) == "" {
		return errors.New("commitRef is required")
	}
	if strings.TrimSpace(r.TestRunID) == "" {
		return errors.New("testRunId is required")
	}
	return nil
}

// CreateJobParams carries a validated enqueue request plus the values the queue assigns.
type CreateJobParams struct {
	ID         string
	Request    EnqueueRequest
	MaxRetries int
}

// NackResult reports what the queue did with a negatively acknowledged job.
type NackResult struct {
	// Updated is false when the job was no longer running under this worker.
	Updated bool
	// Terminal is true when the job exhausted its attempts and will not be retried.
	Terminal bool
	// RetryAt is the next eligible claim time when the job was rescheduled.
	RetryAt *time.Time
}

// JobStats represents statistics about jobs in different states.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
