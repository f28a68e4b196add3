package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Active(t *testing.T) {
	assert.True(t, JobStatusPending.Active())
	assert.True(t, JobStatusRunning.Active())
	assert.False(t, JobStatusCompleted.Active())
	assert.False(t, JobStatusFailed.Active())
	assert.False(t, JobStatusCancelled.Active())
	assert.False(t, JobStatus("unknown").Valid())
}

func TestEnqueueRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     *EnqueueRequest
		wantErr string
	}{
		{
			name: "valid",
			req:  &EnqueueRequest{ProjectID: "p1", CommitRef: "abc123", TestRunID: "run-1"},
		},
		{
			name:    "nil request",
			req:     nil,
			wantErr: "enqueue request is required",
		},
		{
			name:    "missing project",
			req:     &EnqueueRequest{CommitRef: "abc123", TestRunID: "run-1"},
			wantErr: "projectId is required",
		},
		{
			name:    "blank commit ref",
			req:     &EnqueueRequest{ProjectID: "p1", CommitRef: "  ", TestRunID: "run-1"},
			wantErr: "commitRef is required",
		},
		{
			name:    "missing test run id",
			req:     &EnqueueRequest{ProjectID: "p1", CommitRef: "abc123"},
			wantErr: "testRunId is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJob_Attempt(t *testing.T) {
	var nilJob *Job
	assert.Equal(t, 0, nilJob.Attempt())
	assert.Equal(t, 1, (&Job{}).Attempt())
	assert.Equal(t, 3, (&Job{RetryCount: 2}).Attempt())
}

func TestTestRunStatus_Terminal(t *testing.T) {
	for _, s := range TerminalTestRunStatuses() {
		assert.True(t, s.Terminal(), s)
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, TestRunPending.Terminal())
	assert.False(t, TestRunRunning.Terminal())
	assert.True(t, TestRunRunning.Valid())
	assert.False(t, TestRunStatus("DONE").Valid())
}

func TestOutcomeStatus(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		autoHealed int
		want       TestRunStatus
	}{
		{name: "no failures", failures: 0, autoHealed: 0, want: TestRunPassed},
		{name: "all healed", failures: 2, autoHealed: 2, want: TestRunHealed},
		{name: "some healed", failures: 3, autoHealed: 1, want: TestRunPartial},
		{name: "none healed", failures: 2, autoHealed: 0, want: TestRunFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeStatus(tt.failures, tt.autoHealed))
		})
	}
}

func TestSuggestRequest_Validate(t *testing.T) {
	require.NoError(t, (&SuggestRequest{Selector: "#a"}).Validate())
	require.NoError(t, (&SuggestRequest{ErrorMessage: "Element not found: #a"}).Validate())
	require.Error(t, (&SuggestRequest{DOMSnapshot: "<div/>"}).Validate())
}
