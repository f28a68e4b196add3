package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/healwright/internal/domain/healing"
	"github.com/target/healwright/internal/domain/model"
	"github.com/target/healwright/internal/mocks"
)

// selectorHealer answers per failed selector and panics for unknown ones.
type selectorHealer struct {
	mu      sync.Mutex
	answers map[string]model.Suggestion
	calls   int
}

func (h *selectorHealer) Heal(_ context.Context, in healing.Context) model.Suggestion {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	s, ok := h.answers[in.FailedSelector]
	if !ok {
		panic("no answer for " + in.FailedSelector)
	}
	return s
}

// stubPublisher records publish calls. Findings without a scripted result get ReasonNoCredential.
type stubPublisher struct {
	mu        sync.Mutex
	published []string
	results   map[string]PublishResult
}

func (p *stubPublisher) Publish(_ context.Context, f *model.HealingFinding) PublishResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, f.ID)
	if res, ok := p.results[f.ID]; ok {
		return res
	}
	return PublishResult{Reason: ReasonNoCredential}
}

type orchestratorFixture struct {
	jobs      *mocks.MockJobRepository
	runs      *mocks.MockTestRunRepository
	findings  *mocks.MockFindingRepository
	projects  *mocks.MockProjectRepository
	runner    *mocks.MockTestRunner
	healer    *selectorHealer
	publisher *stubPublisher
	orch      *Orchestrator

	mu       sync.Mutex
	progress []int
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &orchestratorFixture{
		jobs:      mocks.NewMockJobRepository(ctrl),
		runs:      mocks.NewMockTestRunRepository(ctrl),
		findings:  mocks.NewMockFindingRepository(ctrl),
		projects:  mocks.NewMockProjectRepository(ctrl),
		runner:    mocks.NewMockTestRunner(ctrl),
		healer:    &selectorHealer{answers: map[string]model.Suggestion{}},
		publisher: &stubPublisher{},
	}
	f.jobs.EXPECT().UpdateProgress(gomock.Any(), "job-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, pct int) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.progress = append(f.progress, pct)
			return nil
		}).AnyTimes()
	f.orch = MustNewOrchestrator(OrchestratorOptions{
		Jobs:               f.jobs,
		Runs:               f.runs,
		Findings:           f.findings,
		Projects:           f.projects,
		Runner:             f.runner,
		Healer:             f.healer,
		Publisher:          f.publisher,
		FailureConcurrency: 2,
	})
	return f
}

func testJob() *model.Job {
	return &model.Job{
		ID:        "job-1",
		TestRunID: "run-1",
		ProjectID: "proj-1",
		CommitRef: "abc123",
		Status:    model.JobStatusRunning,
		Metadata:  model.JobMetadata{Repository: "https://github.com/acme/fallback"},
	}
}

func (f *orchestratorFixture) expectProject(repoURL string, credErr error) {
	f.projects.EXPECT().GetProject(gomock.Any(), "proj-1").Return(project(repoURL), nil)
	if credErr != nil {
		f.projects.EXPECT().GetCredential(gomock.Any(), "user-1", model.ProviderGitHub).Return(nil, credErr)
		return
	}
	f.projects.EXPECT().GetCredential(gomock.Any(), "user-1", model.ProviderGitHub).
		Return(&model.SourceControlCredential{AccessToken: "gho_x"}, nil)
}

// expectFindings makes the finding repository behave like a table keyed by finding id.
func (f *orchestratorFixture) expectFindings() *sync.Map {
	store := &sync.Map{}
	f.findings.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p model.CreateFindingParams) (*model.HealingFinding, error) {
			v, _ := store.LoadOrStore(p.ID, &model.HealingFinding{
				ID: p.ID, TestRunID: p.TestRunID, ProjectID: p.ProjectID, Failure: p.Failure,
				Decision: model.DecisionAnalyzing,
			})
			return v.(*model.HealingFinding), nil
		}).AnyTimes()
	f.findings.EXPECT().Decide(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p model.DecideFindingParams) (*model.HealingFinding, error) {
			v, _ := store.Load(p.ID)
			cur := *v.(*model.HealingFinding)
			cur.Decision = p.Decision
			if p.Suggestion.HasSelector() {
				cur.ProposedSelector = ptr(p.Suggestion.NewSelector)
				cur.Confidence = ptr(p.Suggestion.Confidence)
			}
			store.Store(p.ID, &cur)
			return &cur, nil
		}).AnyTimes()
	return store
}

func TestOrchestrator_SkipsTerminalRun(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.runs.EXPECT().MarkRunning(gomock.Any(), "run-1").Return(false, nil)

	require.NoError(t, f.orch.Process(context.Background(), testJob()))
	assert.Equal(t, []int{5}, f.progress)
}

func TestOrchestrator_PassingRun(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.runs.EXPECT().MarkRunning(gomock.Any(), "run-1").Return(true, nil)
	f.expectProject("https://github.com/acme/web", nil)
	f.runner.EXPECT().Run(gomock.Any(), model.RunRequest{
		JobID: "job-1", RepositoryURL: "https://github.com/acme/web", CommitRef: "abc123", AuthToken: "gho_x",
	}).Return(&model.RunResult{Passed: 12, Total: 12}, nil)
	f.runs.EXPECT().Finish(gomock.Any(), model.FinishTestRunParams{
		ID: "run-1", Status: model.TestRunPassed, Summary: model.ResultsSummary{Passed: 12, Total: 12},
	}).Return(true, nil)

	require.NoError(t, f.orch.Process(context.Background(), testJob()))
	assert.Equal(t, []int{5, 10, 100}, f.progress)
	assert.Zero(t, f.healer.calls)
}

func TestOrchestrator_FallsBackToMetadataRepository(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.runs.EXPECT().MarkRunning(gomock.Any(), "run-1").Return(true, nil)
	f.expectProject("", model.ErrCredentialNotFound)
	f.runner.EXPECT().Run(gomock.Any(), model.RunRequest{
		JobID: "job-1", RepositoryURL: "https://github.com/acme/fallback", CommitRef: "abc123",
	}).Return(&model.RunResult{Passed: 1, Total: 1}, nil)
	f.runs.EXPECT().Finish(gomock.Any(), gomock.Any()).Return(true, nil)

	require.NoError(t, f.orch.Process(context.Background(), testJob()))
}

func TestOrchestrator_HealsAndPublishes(t *testing.T) {
	f := newOrchestratorFixture(t)
	failures := []model.Failure{
		{TestName: "logs in", TestFile: "login.spec.ts", FailedSelector: "#login", DOMSnapshotAfter: "<button>"},
		{TestName: "checks out", TestFile: "cart.spec.ts", FailedSelector: "#checkout"},
		{TestName: "searches", TestFile: "search.spec.ts", FailedSelector: "#search"},
	}
	f.healer.answers["#login"] = model.Suggestion{NewSelector: `[data-testid="login"]`, Confidence: 0.97, Source: model.SourceAI}
	f.healer.answers["#checkout"] = model.Suggestion{NewSelector: "#checkout", Confidence: 0.5, Source: model.SourceHeuristic}
	// "#search" has no answer: the healer panics and only that finding fails.

	f.runs.EXPECT().MarkRunning(gomock.Any(), "run-1").Return(true, nil)
	f.expectProject("https://github.com/acme/web", nil)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).
		Return(&model.RunResult{Passed: 7, Failed: 3, Total: 10, Failures: failures}, nil)
	store := f.expectFindings()
	f.runs.EXPECT().Finish(gomock.Any(), model.FinishTestRunParams{
		ID:      "run-1",
		Status:  model.TestRunPartial,
		Summary: model.ResultsSummary{Passed: 7, Failed: 3, Healed: 1, Total: 10},
	}).Return(true, nil)

	require.NoError(t, f.orch.Process(context.Background(), testJob()))

	decisions := map[string]model.Decision{}
	for _, fl := range failures {
		v, ok := store.Load(model.FindingID("run-1", fl))
		require.True(t, ok)
		decisions[fl.FailedSelector] = v.(*model.HealingFinding).Decision
	}
	assert.Equal(t, map[string]model.Decision{
		"#login":    model.DecisionHealedAuto,
		"#checkout": model.DecisionBugDetected,
		"#search":   model.DecisionFailed,
	}, decisions)
	assert.Equal(t, []string{model.FindingID("run-1", failures[0])}, f.publisher.published)
	assert.Equal(t, []int{5, 10, 60, 85, 100}, f.progress)
}

func TestOrchestrator_PublishErrorDoesNotStopOtherFindings(t *testing.T) {
	f := newOrchestratorFixture(t)
	failures := []model.Failure{
		{TestName: "logs in", TestFile: "login.spec.ts", FailedSelector: "#login"},
		{TestName: "checks out", TestFile: "cart.spec.ts", FailedSelector: "#checkout"},
	}
	first, second := model.FindingID("run-1", failures[0]), model.FindingID("run-1", failures[1])
	f.healer.answers["#login"] = model.Suggestion{NewSelector: `[data-testid="login"]`, Confidence: 0.97, Source: model.SourceAI}
	f.healer.answers["#checkout"] = model.Suggestion{NewSelector: `[data-testid="checkout"]`, Confidence: 0.99, Source: model.SourceAI}
	f.publisher.results = map[string]PublishResult{
		first:  {Reason: "source control error: 502 bad gateway"},
		second: {Opened: true, PRURL: "https://github.com/acme/web/pull/12"},
	}

	f.runs.EXPECT().MarkRunning(gomock.Any(), "run-1").Return(true, nil)
	f.expectProject("https://github.com/acme/web", nil)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).
		Return(&model.RunResult{Passed: 3, Failed: 2, Total: 5, Failures: failures}, nil)
	f.expectFindings()
	f.runs.EXPECT().Finish(gomock.Any(), model.FinishTestRunParams{
		ID:      "run-1",
		Status:  model.TestRunHealed,
		Summary: model.ResultsSummary{Passed: 3, Failed: 2, Healed: 2, Total: 5},
	}).Return(true, nil)

	require.NoError(t, f.orch.Process(context.Background(), testJob()))
	assert.Equal(t, []string{first, second}, f.publisher.published)
	assert.Equal(t, 100, f.progress[len(f.progress)-1])
}

func TestOrchestrator_RedeliveryReusesDecidedFindings(t *testing.T) {
	f := newOrchestratorFixture(t)
	failure := model.Failure{TestName: "logs in", TestFile: "login.spec.ts", FailedSelector: "#login"}
	decided := &model.HealingFinding{
		ID:               model.FindingID("run-1", failure),
		Failure:          failure,
		Decision:         model.DecisionHealedAuto,
		ProposedSelector: ptr("#new"),
	}

	f.runs.EXPECT().MarkRunning(gomock.Any(), "run-1").Return(true, nil)
	f.expectProject("https://github.com/acme/web", nil)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).
		Return(&model.RunResult{Failed: 1, Total: 1, Failures: []model.Failure{failure}}, nil)
	f.findings.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(decided, nil)
	f.runs.EXPECT().Finish(gomock.Any(), model.FinishTestRunParams{
		ID: "run-1", Status: model.TestRunHealed, Summary: model.ResultsSummary{Failed: 1, Healed: 1, Total: 1},
	}).Return(true, nil)

	require.NoError(t, f.orch.Process(context.Background(), testJob()))
	assert.Zero(t, f.healer.calls)
	assert.Equal(t, []string{decided.ID}, f.publisher.published)
}

func TestOrchestrator_ConcurrentDecisionReloads(t *testing.T) {
	f := newOrchestratorFixture(t)
	failure := model.Failure{TestName: "logs in", FailedSelector: "#login"}
	id := model.FindingID("run-1", failure)
	f.healer.answers["#login"] = model.Suggestion{NewSelector: "#new", Confidence: 0.8}

	f.runs.EXPECT().MarkRunning(gomock.Any(), "run-1").Return(true, nil)
	f.expectProject("https://github.com/acme/web", nil)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).
		Return(&model.RunResult{Failed: 1, Total: 1, Failures: []model.Failure{failure}}, nil)
	f.findings.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).
		Return(&model.HealingFinding{ID: id, Decision: model.DecisionAnalyzing}, nil)
	f.findings.EXPECT().Decide(gomock.Any(), gomock.Any()).Return(nil, model.ErrFindingDecided)
	f.findings.EXPECT().GetByID(gomock.Any(), id).
		Return(&model.HealingFinding{ID: id, Decision: model.DecisionNeedsReview}, nil)
	f.runs.EXPECT().Finish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p model.FinishTestRunParams) (bool, error) {
			assert.Equal(t, model.TestRunFailed, p.Status)
			return true, nil
		})

	require.NoError(t, f.orch.Process(context.Background(), testJob()))
	assert.Empty(t, f.publisher.published)
}

func TestOrchestrator_Errors(t *testing.T) {
	t.Run("runner error is returned for nack", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		f.runs.EXPECT().MarkRunning(gomock.Any(), "run-1").Return(true, nil)
		f.expectProject("https://github.com/acme/web", nil)
		f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(nil, errors.New("clone failed"))

		err := f.orch.Process(context.Background(), testJob())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "clone failed")
	})

	t.Run("missing repository", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		job := testJob()
		job.Metadata.Repository = ""
		f.runs.EXPECT().MarkRunning(gomock.Any(), "run-1").Return(true, nil)
		f.projects.EXPECT().GetProject(gomock.Any(), "proj-1").Return(project(""), nil)

		require.Error(t, f.orch.Process(context.Background(), job))
	})

	t.Run("finding persistence error aborts the job", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		f.runs.EXPECT().MarkRunning(gomock.Any(), "run-1").Return(true, nil)
		f.expectProject("https://github.com/acme/web", nil)
		f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).
			Return(&model.RunResult{Failed: 1, Total: 1, Failures: []model.Failure{{TestName: "x", FailedSelector: "#x"}}}, nil)
		f.findings.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

		require.Error(t, f.orch.Process(context.Background(), testJob()))
	})

	t.Run("nil job", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		require.Error(t, f.orch.Process(context.Background(), nil))
	})
}

func TestStage_Progress(t *testing.T) {
	assert.Equal(t, 5, StageClaimed.Progress())
	assert.Equal(t, 100, StageDonePassed.Progress())
	assert.Equal(t, 0, Stage("BOGUS").Progress())
}
