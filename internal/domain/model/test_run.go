package model

import (
	"errors"
	"time"
)

// TestRunStatus is the lifecycle state of a test run.
type TestRunStatus string

const (
	TestRunPending   TestRunStatus = "PENDING"
	TestRunRunning   TestRunStatus = "RUNNING"
	TestRunPassed    TestRunStatus = "PASSED"
	TestRunFailed    TestRunStatus = "FAILED"
	TestRunHealed    TestRunStatus = "HEALED"
	TestRunPartial   TestRunStatus = "PARTIAL"
	TestRunCancelled TestRunStatus = "CANCELLED"
)

// ErrTestRunNotFound is returned when a test run lookup misses.
var ErrTestRunNotFound = errors.New("test run not found")

// TerminalTestRunStatuses lists the states a test run never leaves.
func TerminalTestRunStatuses() []TestRunStatus {
	return []TestRunStatus{TestRunPassed, TestRunFailed, TestRunHealed, TestRunPartial, TestRunCancelled}
}

// Valid returns true if the status is a known test run state.
func (s TestRunStatus) Valid() bool {
	switch s {
	case TestRunPending, TestRunRunning:
		return true
	default:
		return s.Terminal()
	}
}

// Terminal reports whether the status is final.
func (s TestRunStatus) Terminal() bool {
	switch s {
	case TestRunPassed, TestRunFailed, TestRunHealed, TestRunPartial, TestRunCancelled:
		return true
	default:
		return false
	}
}

// ResultsSummary counts test outcomes for a run.
type ResultsSummary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Healed int `json:"healed"`
	Total  int `json:"total"`
}

// TestRun is the persisted record of one test execution request, keyed by the caller's testRunId.
type TestRun struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"projectId"`
	CommitRef    string         `json:"commitRef"`
	Status       TestRunStatus  `json:"status"`
	Summary      ResultsSummary `json:"resultsSummary"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// FinishTestRunParams records the terminal outcome of a run.
type FinishTestRunParams struct {
	ID      string
	Status  TestRunStatus
	Summary ResultsSummary
}

// OutcomeStatus derives the terminal run status from the healing decisions of its failures.
// A run with no failures passed. A run whose failures were all auto-healed is HEALED, a run with
// some auto-healed failures is PARTIAL and a run with none is FAILED.
func OutcomeStatus(failures, autoHealed int) TestRunStatus {
	switch {
	case failures == 0:
		return TestRunPassed
	case autoHealed >= failures:
		return TestRunHealed
	case autoHealed > 0:
		return TestRunPartial
	default:
		return TestRunFailed
	}
}
