package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/healwright/internal/core"
	"github.com/target/healwright/internal/domain/model"
	"github.com/target/healwright/internal/mocks"
)

const testFindingID = "0b6f9c1e-2a44-5d1f-8c3e-7a9b0c1d2e3f"

type publisherFixture struct {
	projects *mocks.MockProjectRepository
	findings *mocks.MockFindingRepository
	scm      *mocks.MockSourceControl
	locker   *mocks.MockPublishLocker
	sink     *recordingSink
	pub      *Publisher
}

func newPublisherFixture(t *testing.T) publisherFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := publisherFixture{
		projects: mocks.NewMockProjectRepository(ctrl),
		findings: mocks.NewMockFindingRepository(ctrl),
		scm:      mocks.NewMockSourceControl(ctrl),
		locker:   mocks.NewMockPublishLocker(ctrl),
		sink:     &recordingSink{},
	}
	pub, err := NewPublisher(PublisherOptions{
		Projects:      f.projects,
		Findings:      f.findings,
		SourceControl: f.scm,
		Locker:        f.locker,
		LockTTL:       time.Minute,
		Metrics:       f.sink,
	})
	require.NoError(t, err)
	f.pub = pub
	return f
}

func autoHealedFinding() *model.HealingFinding {
	return &model.HealingFinding{
		ID:        testFindingID,
		TestRunID: "run-1",
		ProjectID: "proj-1",
		Failure: model.Failure{
			TestName:       "logs in",
			TestFile:       "tests/login.spec.ts",
			FailedSelector: "#login-btn",
			SelectorType:   model.SelectorCSS,
		},
		ProposedSelector: ptr(`[data-testid="login"]`),
		Confidence:       ptr(0.97),
		Reasoning:        ptr("button kept its test id"),
		Source:           model.SourceAI,
		Decision:         model.DecisionHealedAuto,
	}
}

func project(repoURL string) *model.Project {
	p := &model.Project{ID: "proj-1", OwnerUserID: "user-1"}
	if repoURL != "" {
		p.RepositoryURL = ptr(repoURL)
	}
	return p
}

func (f publisherFixture) expectPreconditions(repoURL string) {
	f.projects.EXPECT().GetProject(gomock.Any(), "proj-1").Return(project(repoURL), nil)
	f.projects.EXPECT().GetCredential(gomock.Any(), "user-1", model.ProviderGitHub).
		Return(&model.SourceControlCredential{UserID: "user-1", Provider: model.ProviderGitHub, AccessToken: "gho_x"}, nil)
}

func TestPublisher_ShortCircuits(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.HealingFinding)
		setup  func(publisherFixture)
		reason string
	}{
		{
			name:   "decision not auto healed",
			mutate: func(f *model.HealingFinding) { f.Decision = model.DecisionNeedsReview },
			reason: ReasonNotAutoHealed,
		},
		{
			name:   "no proposed selector",
			mutate: func(f *model.HealingFinding) { f.ProposedSelector = ptr("  ") },
			reason: ReasonNoSelector,
		},
		{
			name:   "placeholder selector",
			mutate: func(f *model.HealingFinding) { f.ProposedSelector = ptr(model.UnknownSelector) },
			reason: ReasonNoSelector,
		},
		{
			name: "project without repository",
			setup: func(f publisherFixture) {
				f.projects.EXPECT().GetProject(gomock.Any(), "proj-1").Return(project(""), nil)
			},
			reason: ReasonNoRepository,
		},
		{
			name: "unparseable repository",
			setup: func(f publisherFixture) {
				f.projects.EXPECT().GetProject(gomock.Any(), "proj-1").Return(project("https://github.com/acme"), nil)
			},
			reason: ReasonBadRepository,
		},
		{
			name: "owner without credential",
			setup: func(f publisherFixture) {
				f.projects.EXPECT().GetProject(gomock.Any(), "proj-1").Return(project("https://github.com/acme/web"), nil)
				f.projects.EXPECT().GetCredential(gomock.Any(), "user-1", model.ProviderGitHub).
					Return(nil, model.ErrCredentialNotFound)
			},
			reason: ReasonNoCredential,
		},
		{
			name: "another worker holds the lock",
			setup: func(f publisherFixture) {
				f.expectPreconditions("https://github.com/acme/web")
				f.locker.EXPECT().TryLock(gomock.Any(), "healwright:publish:"+testFindingID, time.Minute).
					Return(nil, false, nil)
			},
			reason: ReasonInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPublisherFixture(t)
			finding := autoHealedFinding()
			if tt.mutate != nil {
				tt.mutate(finding)
			}
			if tt.setup != nil {
				tt.setup(f)
			}
			f.findings.EXPECT().SetPublishReason(gomock.Any(), testFindingID, tt.reason).Return(nil)

			res := f.pub.Publish(context.Background(), finding)
			assert.False(t, res.Opened)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Empty(t, res.PRURL)
			assert.Equal(t, 1, f.sink.countNamed("publish.attempt"))
		})
	}
}

func TestPublisher_AlreadyPublished(t *testing.T) {
	f := newPublisherFixture(t)
	finding := autoHealedFinding()
	finding.PRURL = ptr("https://github.com/acme/web/pull/3")

	res := f.pub.Publish(context.Background(), finding)
	assert.Equal(t, PublishResult{PRURL: "https://github.com/acme/web/pull/3", Reason: ReasonAlreadyPublished}, res)
}

func TestPublisher_OpensPullRequest(t *testing.T) {
	f := newPublisherFixture(t)
	finding := autoHealedFinding()
	released := false

	f.expectPreconditions("git@github.com:acme/web.git")
	f.locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(func() { released = true }, true, nil)
	f.findings.EXPECT().GetByID(gomock.Any(), testFindingID).Return(autoHealedFinding(), nil)
	f.scm.EXPECT().OpenFixPR(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, pr core.FixPR) (core.PRHandle, error) {
		assert.Equal(t, "acme", pr.Owner)
		assert.Equal(t, "web", pr.Repo)
		assert.Equal(t, "gho_x", pr.Token)
		assert.Equal(t, "healwright/fix-0b6f9c1e2a44", pr.Branch)
		assert.Equal(t, ".healwright/fixes/"+testFindingID+".md", pr.FilePath)
		assert.Contains(t, pr.Body, "`#login-btn`")
		assert.Contains(t, pr.Body, "`[data-testid=\"login\"]`")
		assert.Contains(t, pr.Body, "Confidence: 97% (source: ai)")
		assert.True(t, strings.HasPrefix(pr.Title, "fix(tests):"))
		return core.PRHandle{URL: "https://github.com/acme/web/pull/9", Branch: pr.Branch, Number: 9}, nil
	})
	f.findings.EXPECT().AttachPullRequest(gomock.Any(), model.AttachPullRequestParams{
		FindingID: testFindingID,
		URL:       "https://github.com/acme/web/pull/9",
		Branch:    "healwright/fix-0b6f9c1e2a44",
	}).Return(true, nil)

	res := f.pub.Publish(context.Background(), finding)
	assert.Equal(t, PublishResult{Opened: true, PRURL: "https://github.com/acme/web/pull/9"}, res)
	assert.True(t, released)
	samples := f.sink.named("count", "publish.attempt")
	require.Len(t, samples, 1)
	assert.Equal(t, "success", samples[0].tags["result"])
}

func TestPublisher_PublishedWhileWaitingForLock(t *testing.T) {
	f := newPublisherFixture(t)
	published := autoHealedFinding()
	published.PRURL = ptr("https://github.com/acme/web/pull/4")

	f.expectPreconditions("acme/web")
	f.locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any()).Return(func() {}, true, nil)
	f.findings.EXPECT().GetByID(gomock.Any(), testFindingID).Return(published, nil)

	res := f.pub.Publish(context.Background(), autoHealedFinding())
	assert.False(t, res.Opened)
	assert.Equal(t, ReasonAlreadyPublished, res.Reason)
	assert.Equal(t, "https://github.com/acme/web/pull/4", res.PRURL)
}

func TestPublisher_SourceControlError(t *testing.T) {
	f := newPublisherFixture(t)
	f.expectPreconditions("https://github.com/acme/web")
	f.locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, false, errors.New("redis down"))
	f.findings.EXPECT().GetByID(gomock.Any(), testFindingID).Return(autoHealedFinding(), nil)
	f.scm.EXPECT().OpenFixPR(gomock.Any(), gomock.Any()).Return(core.PRHandle{}, errors.New("403 forbidden"))
	f.findings.EXPECT().SetPublishReason(gomock.Any(), testFindingID, "source control error: 403 forbidden").Return(nil)

	res := f.pub.Publish(context.Background(), autoHealedFinding())
	assert.False(t, res.Opened)
	assert.Equal(t, "source control error: 403 forbidden", res.Reason)
	samples := f.sink.named("count", "publish.attempt")
	require.Len(t, samples, 1)
	assert.Equal(t, "source control error", samples[0].tags["reason"])
}

func TestParseRepositoryURL(t *testing.T) {
	tests := []struct {
		in          string
		owner, repo string
		ok          bool
	}{
		{in: "https://github.com/acme/web", owner: "acme", repo: "web", ok: true},
		{in: "https://github.com/acme/web.git/", owner: "acme", repo: "web", ok: true},
		{in: "ssh://git@github.com/acme/web.git", owner: "acme", repo: "web", ok: true},
		{in: "git@github.com:acme/web.git", owner: "acme", repo: "web", ok: true},
		{in: "acme/web", owner: "acme", repo: "web", ok: true},
		{in: "https://github.com/acme", ok: false},
		{in: "https://github.com/acme/web/tree/main", ok: false},
		{in: "", ok: false},
		{in: "git@github.com", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			owner, repo, ok := ParseRepositoryURL(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}

func TestBranchName(t *testing.T) {
	assert.Equal(t, "healwright/fix-0b6f9c1e2a44", BranchName(testFindingID))
	assert.Equal(t, "healwright/fix-short", BranchName("short"))
}
