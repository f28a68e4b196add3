package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/target/healwright/internal/core"
	"github.com/target/healwright/internal/domain/model"
	"github.com/target/healwright/internal/observability/metrics"
	"github.com/target/healwright/internal/observability/statsd"
)

// Publish short-circuit reasons.
const (
	ReasonAlreadyPublished = "pull request already opened"
	ReasonNotAutoHealed    = "decision does not allow automatic fixes"
	ReasonNoSelector       = "no proposed selector"
	ReasonNoRepository     = "project has no linked repository"
	ReasonBadRepository    = "repository url does not name an owner and repository"
	ReasonNoCredential     = "project owner has no source control credential"
	ReasonInProgress       = "another worker is publishing this finding"
)

// BranchPrefix prefixes every fix branch.
const BranchPrefix = "healwright/fix-"

// PublishResult is the outcome of a publish attempt. Reason is set whenever Opened is false.
type PublishResult struct {
	Opened bool
	PRURL  string
	Reason string
}

// PublisherOptions groups dependencies for Publisher.
type PublisherOptions struct {
	Projects      core.ProjectRepository // Required
	Findings      core.FindingRepository // Required
	SourceControl core.SourceControl     // Required
	Locker        core.PublishLocker     // Optional: serializes publishes across workers
	LockTTL       time.Duration
	Metrics       statsd.Sink
	Logger        *slog.Logger
}

// Publisher opens fix pull requests for auto-healed findings, at most once per finding.
type Publisher struct {
	projects core.ProjectRepository
	findings core.FindingRepository
	scm      core.SourceControl
	locker   core.PublishLocker
	lockTTL  time.Duration
	metrics  statsd.Sink
	logger   *slog.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	switch {
	case opts.Projects == nil:
		return nil, errors.New("ProjectRepository is required")
	case opts.Findings == nil:
		return nil, errors.New("FindingRepository is required")
	case opts.SourceControl == nil:
		return nil, errors.New("SourceControl is required")
	}
	p := &Publisher{
		projects: opts.Projects,
		findings: opts.Findings,
		scm:      opts.SourceControl,
		locker:   opts.Locker,
		lockTTL:  opts.LockTTL,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if p.lockTTL <= 0 {
		p.lockTTL = 2 * time.Minute
	}
	if p.metrics == nil {
		p.metrics = statsd.Discard
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "publisher")
	return p, nil
}

// Publish opens a pull request for the finding when every precondition holds. It never returns an
// error: failures become a Reason, which is also stored on the finding.
func (p *Publisher) Publish(ctx context.Context, finding *model.HealingFinding) PublishResult {
	start := time.Now()
	res := p.publish(ctx, finding)
	metrics.EmitPublish(p.metrics, res.Opened, reasonTag(res.Reason), time.Since(start))

	if !res.Opened && res.Reason != ReasonAlreadyPublished && finding != nil {
		if err := p.findings.SetPublishReason(ctx, finding.ID, res.Reason); err != nil {
			p.logger.WarnContext(ctx, "failed to record publish reason", "finding_id", finding.ID, "error", err)
		}
	}
	return res
}

func (p *Publisher) publish(ctx context.Context, finding *model.HealingFinding) PublishResult {
	if finding == nil {
		return PublishResult{Reason: "no finding"}
	}
	if finding.Published() {
		return PublishResult{PRURL: *finding.PRURL, Reason: ReasonAlreadyPublished}
	}
	if finding.Decision != model.DecisionHealedAuto {
		return PublishResult{Reason: ReasonNotAutoHealed}
	}
	if !finding.HasProposedSelector() {
		return PublishResult{Reason: ReasonNoSelector}
	}

	project, err := p.projects.GetProject(ctx, finding.ProjectID)
	if err != nil {
		p.logger.WarnContext(ctx, "project lookup failed", "finding_id", finding.ID, "project_id", finding.ProjectID, "error", err)
		return PublishResult{Reason: fmt.Sprintf("project lookup failed: %v", err)}
	}
	if project.RepositoryURL == nil || strings.TrimSpace(*project.RepositoryURL) == "" {
		return PublishResult{Reason: ReasonNoRepository}
	}
	owner, repo, ok := ParseRepositoryURL(*project.RepositoryURL)
	if !ok {
		return PublishResult{Reason: ReasonBadRepository}
	}

	cred, err := p.projects.GetCredential(ctx, project.OwnerUserID, model.ProviderGitHub)
	switch {
	case errors.Is(err, model.ErrCredentialNotFound):
		return PublishResult{Reason: ReasonNoCredential}
	case err != nil:
		p.logger.WarnContext(ctx, "credential lookup failed", "finding_id", finding.ID, "error", err)
		return PublishResult{Reason: fmt.Sprintf("credential lookup failed: %v", err)}
	case strings.TrimSpace(cred.AccessToken) == "":
		return PublishResult{Reason: ReasonNoCredential}
	}

	release, res, locked := p.lock(ctx, finding.ID)
	if !locked {
		return res
	}
	defer release()

	// Another worker may have published while we waited for the lock.
	if current, err := p.findings.GetByID(ctx, finding.ID); err == nil && current.Published() {
		return PublishResult{PRURL: *current.PRURL, Reason: ReasonAlreadyPublished}
	}

	handle, err := p.scm.OpenFixPR(ctx, buildFixPR(finding, owner, repo, cred.AccessToken))
	if err != nil {
		p.logger.ErrorContext(ctx, "opening pull request failed",
			"finding_id", finding.ID, "repository", owner+"/"+repo, "error", err)
		return PublishResult{Reason: fmt.Sprintf("source control error: %v", err)}
	}

	attached, err := p.findings.AttachPullRequest(ctx, model.AttachPullRequestParams{
		FindingID: finding.ID,
		URL:       handle.URL,
		Branch:    handle.Branch,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "recording pull request failed", "finding_id", finding.ID, "pr_url", handle.URL, "error", err)
		return PublishResult{PRURL: handle.URL, Reason: fmt.Sprintf("record pull request: %v", err)}
	}
	if !attached {
		return PublishResult{PRURL: handle.URL, Reason: ReasonAlreadyPublished}
	}

	p.logger.InfoContext(ctx, "pull request opened",
		"finding_id", finding.ID, "test_run_id", finding.TestRunID, "pr_url", handle.URL, "existing_branch", handle.Existing)
	return PublishResult{Opened: true, PRURL: handle.URL}
}

// lock takes the per-finding publish lock. A lock backend error is logged and publishing proceeds:
// the source control adapter is idempotent per branch and the database attach is guarded.
func (p *Publisher) lock(ctx context.Context, findingID string) (func(), PublishResult, bool) {
	if p.locker == nil {
		return func() {}, PublishResult{}, true
	}
	release, ok, err := p.locker.TryLock(ctx, "healwright:publish:"+findingID, p.lockTTL)
	switch {
	case err != nil:
		p.logger.WarnContext(ctx, "publish lock unavailable, continuing without it", "finding_id", findingID, "error", err)
		return func() {}, PublishResult{}, true
	case !ok:
		return nil, PublishResult{Reason: ReasonInProgress}, false
	}
	if release == nil {
		release = func() {}
	}
	return release, PublishResult{}, true
}

// BranchName returns the fix branch of a finding.
func BranchName(findingID string) string {
	prefix := strings.ReplaceAll(findingID, "-", "")
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return BranchPrefix + prefix
}

// FixFilePath is where the fix description is committed.
func FixFilePath(findingID string) string {
	return ".healwright/fixes/" + findingID + ".md"
}

func buildFixPR(f *model.HealingFinding, owner, repo, token string) core.FixPR {
	proposed := *f.ProposedSelector
	confidence := 0.0
	if f.Confidence != nil {
		confidence = *f.Confidence
	}
	reasoning := ""
	if f.Reasoning != nil {
		reasoning = *f.Reasoning
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Healwright detected a broken selector in `%s` (%s).\n\n", f.Failure.TestName, f.Failure.TestFile)
	fmt.Fprintf(&body, "| | Selector |\n|---|---|\n| Before | `%s` |\n| After | `%s` |\n\n", f.Failure.FailedSelector, proposed)
	fmt.Fprintf(&body, "Confidence: %.0f%% (source: %s)\n\n", confidence*100, f.Source)
	if reasoning != "" {
		fmt.Fprintf(&body, "%s\n\n", reasoning)
	}
	fmt.Fprintf(&body, "Test run: `%s`\nFinding: `%s`\n", f.TestRunID, f.ID)

	return core.FixPR{
		Owner:         owner,
		Repo:          repo,
		Token:         token,
		Branch:        BranchName(f.ID),
		Title:         fmt.Sprintf("fix(tests): heal selector in %q", f.Failure.TestName),
		Body:          body.String(),
		CommitMessage: fmt.Sprintf("test: replace selector %s with %s", f.Failure.FailedSelector, proposed),
		FilePath:      FixFilePath(f.ID),
		FileContent:   []byte(body.String()),
	}
}

// ParseRepositoryURL extracts owner and repository from https, ssh and scp-style git URLs and from
// a bare "owner/repo".
func ParseRepositoryURL(raw string) (owner, repo string, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", "", false
	}

	var path string
	switch {
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "", "", false
		}
		path = u.Path
	case strings.HasPrefix(s, "git@"):
		_, after, found := strings.Cut(s, ":")
		if !found {
			return "", "", false
		}
		path = after
	default:
		path = s
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// reasonTag keeps metric cardinality bounded by dropping error details.
func reasonTag(reason string) string {
	if head, _, found := strings.Cut(reason, ":"); found {
		return head
	}
	return reason
}
