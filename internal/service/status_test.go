package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/healwright/internal/domain/model"
	"github.com/target/healwright/internal/mocks"
)

func TestStatusService_GetStatus(t *testing.T) {
	summary := model.ResultsSummary{Passed: 4, Failed: 1, Healed: 1, Total: 5}

	tests := []struct {
		name    string
		run     *model.TestRun
		runErr  error
		job     *model.Job
		jobErr  error
		want    model.RunStatus
		wantErr bool
	}{
		{
			name:   "unknown run",
			runErr: model.ErrTestRunNotFound,
			want:   model.RunStatus{TestRunID: "run-1"},
		},
		{
			name:    "run lookup error",
			runErr:  errors.New("db down"),
			want:    model.RunStatus{TestRunID: "run-1"},
			wantErr: true,
		},
		{
			name: "running job",
			run:  &model.TestRun{ID: "run-1", Status: model.TestRunRunning},
			job:  &model.Job{ID: "job-1", Status: model.JobStatusRunning, Progress: 60},
			want: model.RunStatus{
				Found: true, TestRunID: "run-1", JobID: "job-1",
				QueueState: model.JobStatusRunning, RunState: model.TestRunRunning, Progress: 60,
			},
		},
		{
			name: "retrying job surfaces its error",
			run:  &model.TestRun{ID: "run-1", Status: model.TestRunPending},
			job:  &model.Job{ID: "job-1", Status: model.JobStatusPending, LastError: ptr("clone failed")},
			want: model.RunStatus{
				Found: true, TestRunID: "run-1", JobID: "job-1",
				QueueState: model.JobStatusPending, RunState: model.TestRunPending, LastError: ptr("clone failed"),
			},
		},
		{
			name: "completed job hides stale attempt error",
			run:  &model.TestRun{ID: "run-1", Status: model.TestRunPartial, Summary: summary},
			job:  &model.Job{ID: "job-1", Status: model.JobStatusCompleted, Progress: 100, LastError: ptr("clone failed")},
			want: model.RunStatus{
				Found: true, TestRunID: "run-1", JobID: "job-1", QueueState: model.JobStatusCompleted,
				RunState: model.TestRunPartial, Progress: 100, ResultsSummary: summary,
			},
		},
		{
			name:   "reaped job falls back to run state",
			run:    &model.TestRun{ID: "run-1", Status: model.TestRunHealed, Summary: summary},
			jobErr: model.ErrJobNotFound,
			want: model.RunStatus{
				Found: true, TestRunID: "run-1", QueueState: model.JobStatusCompleted,
				RunState: model.TestRunHealed, Progress: 100, ResultsSummary: summary,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			jobs := mocks.NewMockJobRepository(ctrl)
			runs := mocks.NewMockTestRunRepository(ctrl)

			runs.EXPECT().GetByID(gomock.Any(), "run-1").Return(tt.run, tt.runErr)
			if tt.run != nil {
				jobs.EXPECT().LatestByTestRun(gomock.Any(), "run-1").Return(tt.job, tt.jobErr)
			}

			got, err := NewStatusService(jobs, runs).GetStatus(context.Background(), "run-1")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("GetStatus() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
