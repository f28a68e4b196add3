package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/healwright/config"
	"github.com/target/healwright/internal/core"
	"github.com/target/healwright/internal/domain/model"
	"github.com/target/healwright/internal/mocks"
)

type fakeWorkspaces struct {
	removed int64
	err     error
	maxAge  time.Duration
}

func (f *fakeWorkspaces) CleanOrphans(_ context.Context, maxAge time.Duration) (int64, error) {
	f.maxAge = maxAge
	return f.removed, f.err
}

func reaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        5 * time.Minute,
		PendingMaxAge:   time.Hour,
		CompletedMaxAge: 168 * time.Hour,
		CompletedKeep:   100,
		FailedMaxAge:    720 * time.Hour,
		CancelledMaxAge: 48 * time.Hour,
		WorkspaceMaxAge: 6 * time.Hour,
		BatchSize:       1000,
	}
}

func TestNewReaperService(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{Config: reaperConfig()})
	require.Error(t, err)

	ctrl := gomock.NewController(t)
	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:   mocks.NewMockReaperRepository(ctrl),
		Config: config.ReaperConfig{BatchSize: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, svc.config.BatchSize, "config is sanitized")
	assert.Equal(t, time.Minute, svc.config.Interval)
}

func expectDeleteOld(repo *mocks.MockReaperRepository, status model.JobStatus, maxAge time.Duration, counts ...int64) {
	params := core.DeleteOldJobsParams{Status: status, MaxAge: maxAge, BatchSize: 1000}
	for _, c := range counts {
		repo.EXPECT().DeleteOldJobs(gomock.Any(), params).Return(c, nil)
	}
}

func TestReaperService_RunOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockReaperRepository(ctrl)
	sink := &recordingSink{}
	ws := &fakeWorkspaces{removed: 2}

	gomock.InOrder(
		repo.EXPECT().FailStalePendingJobs(gomock.Any(), time.Hour, 1000).Return(int64(1000), nil),
		repo.EXPECT().FailStalePendingJobs(gomock.Any(), time.Hour, 1000).Return(int64(5), nil),
		repo.EXPECT().FailStalePendingJobs(gomock.Any(), time.Hour, 1000).Return(int64(0), nil),
	)
	expectDeleteOld(repo, model.JobStatusCompleted, 168*time.Hour, 7, 0)
	repo.EXPECT().PruneCompletedJobs(gomock.Any(), 100, 1000).Return(int64(0), nil)
	expectDeleteOld(repo, model.JobStatusFailed, 720*time.Hour, 0)
	expectDeleteOld(repo, model.JobStatusCancelled, 48*time.Hour, 4, 0)

	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig(), Workspaces: ws, Metrics: sink})
	require.NoError(t, err)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CleanupReport{
		FailedPending:     1005,
		DeletedCompleted:  7,
		DeletedCancelled:  4,
		RemovedWorkspaces: 2,
	}, report)
	assert.Equal(t, 6*time.Hour, ws.maxAge)
	assert.Equal(t, 6, sink.countNamed("reaper.cleanup"))
	assert.Equal(t, 1, sink.gaugeNamed("reaper.last_success_epoch"))
}

func TestReaperService_RunOnceContinuesAfterStepError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockReaperRepository(ctrl)
	boom := errors.New("connection reset")

	repo.EXPECT().FailStalePendingJobs(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), boom)
	expectDeleteOld(repo, model.JobStatusCompleted, 168*time.Hour, 0)
	repo.EXPECT().PruneCompletedJobs(gomock.Any(), 100, 1000).Return(int64(3), nil)
	repo.EXPECT().PruneCompletedJobs(gomock.Any(), 100, 1000).Return(int64(0), nil)
	expectDeleteOld(repo, model.JobStatusFailed, 720*time.Hour, 0)
	expectDeleteOld(repo, model.JobStatusCancelled, 48*time.Hour, 0)

	sink := &recordingSink{}
	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig(), Metrics: sink})
	require.NoError(t, err)

	report, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fail_pending")
	assert.Equal(t, int64(3), report.PrunedCompleted)
	assert.Equal(t, 0, sink.gaugeNamed("reaper.last_success_epoch"))
}

func TestReaperService_RunOnceSkipsPruneWhenKeepDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockReaperRepository(ctrl)
	repo.EXPECT().FailStalePendingJobs(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil)
	repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil).Times(3)

	cfg := reaperConfig()
	cfg.CompletedKeep = 0
	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
	require.NoError(t, err)

	_, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
}

func TestReaperService_RunOnceCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockReaperRepository(ctrl)
	repo.EXPECT().FailStalePendingJobs(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), context.Canceled)
	repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), context.Canceled).Times(3)
	repo.EXPECT().PruneCompletedJobs(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), context.Canceled)

	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:       repo,
		Config:     reaperConfig(),
		Workspaces: &fakeWorkspaces{err: context.Canceled},
	})
	require.NoError(t, err)

	_, err = svc.RunOnce(context.Background())
	assert.Equal(t, context.Canceled, err)
}

func TestReaperService_RunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockReaperRepository(ctrl)
	repo.EXPECT().FailStalePendingJobs(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()
	repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()
	repo.EXPECT().PruneCompletedJobs(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
