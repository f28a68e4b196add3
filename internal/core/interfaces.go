// Package core declares the ports between the healwright services and their adapters.
package core

import (
	"context"
	"time"

	"github.com/target/healwright/internal/domain/model"
)

// Service implementations depend on these interfaces, not on concrete repositories.

// JobRepository is the durable job queue.
type JobRepository interface {
	// Enqueue creates the test run if absent and a pending job for it unless an active job for
	// the same test run exists. created is false when the existing active job is returned.
	Enqueue(ctx context.Context, params model.CreateJobParams) (job *model.Job, created bool, err error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// LatestByTestRun returns the most recently created job for a test run.
	LatestByTestRun(ctx context.Context, testRunID string) (*model.Job, error)
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	Complete(ctx context.Context, id string) (bool, error)
	// Fail nacks a running job, rescheduling it with backoff until its attempts are exhausted.
	Fail(ctx context.Context, id, errMsg string) (model.NackResult, error)
	CancelPending(ctx context.Context, testRunID string) (bool, error)
	Stats(ctx context.Context) (*model.JobStats, error)
}

// ReaperRepository defines job retention operations.
type ReaperRepository interface {
	// FailStalePendingJobs marks pending jobs older than maxAge as failed, up to batchSize per call.
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	// DeleteOldJobs deletes jobs with the given status older than maxAge, up to batchSize per call.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
	// PruneCompletedJobs deletes completed jobs beyond the keep most recent ones.
	PruneCompletedJobs(ctx context.Context, keep, batchSize int) (int64, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// TestRunRepository persists test runs. Transitions never leave a terminal state.
type TestRunRepository interface {
	GetByID(ctx context.Context, id string) (*model.TestRun, error)
	// MarkRunning moves a non-terminal run to RUNNING; false means the run is already terminal.
	MarkRunning(ctx context.Context, id string) (bool, error)
	// RecordError stores the last error of a non-terminal run and resets it to PENDING.
	RecordError(ctx context.Context, id, message string) error
	// Finish moves a non-terminal run into a terminal state.
	Finish(ctx context.Context, params model.FinishTestRunParams) (bool, error)
	// Fail moves a non-terminal run to FAILED with the given message.
	Fail(ctx context.Context, id, message string) (bool, error)
}

// FindingRepository persists healing findings.
type FindingRepository interface {
	// CreateIfAbsent inserts an ANALYZING finding or returns the existing one with the same id.
	CreateIfAbsent(ctx context.Context, params model.CreateFindingParams) (*model.HealingFinding, error)
	GetByID(ctx context.Context, id string) (*model.HealingFinding, error)
	ListByTestRun(ctx context.Context, testRunID string) ([]*model.HealingFinding, error)
	// Decide applies a decision once; model.ErrFindingDecided when the finding left ANALYZING.
	Decide(ctx context.Context, params model.DecideFindingParams) (*model.HealingFinding, error)
	// AttachPullRequest sets the PR url once and records the PullRequestRecord. false means a url
	// was already present.
	AttachPullRequest(ctx context.Context, params model.AttachPullRequestParams) (bool, error)
	SetPublishReason(ctx context.Context, id, reason string) error
}

// ProjectRepository reads projects and source control credentials owned by the surrounding app.
type ProjectRepository interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	GetCredential(ctx context.Context, userID, provider string) (*model.SourceControlCredential, error)
}

// IDGenerator produces identifiers for new records.
type IDGenerator interface {
	NewID() string
}

// SourceControl opens fix pull requests. OpenFixPR is one transactional capability: branch,
// commit and pull request either all exist afterwards or the call fails.
type SourceControl interface {
	OpenFixPR(ctx context.Context, pr FixPR) (PRHandle, error)
}

// FixPR describes the pull request a publisher asks for.
type FixPR struct {
	Owner         string
	Repo          string
	Token         string
	Branch        string
	Title         string
	Body          string
	CommitMessage string
	FilePath      string
	FileContent   []byte
}

// PRHandle identifies an opened (or already open) pull request.
type PRHandle struct {
	URL    string
	Branch string
	Number int
	// Existing is true when the branch already existed and its open PR was returned.
	Existing bool
}

// PublishLocker serializes publish attempts for one finding across workers.
// ok is false when another holder owns the key.
type PublishLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// TestRunner executes a project's tests at a commit and reports their failures.
type TestRunner interface {
	Run(ctx context.Context, req model.RunRequest) (*model.RunResult, error)
}
