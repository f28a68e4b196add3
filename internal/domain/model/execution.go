package model

import "time"

// RunRequest asks for one test execution.
type RunRequest struct {
	JobID         string
	RepositoryURL string
	CommitRef     string
	// TestCommand overrides the detected command when non-empty.
	TestCommand string
	// AuthToken authenticates the clone; it never appears in URLs or logs.
	AuthToken string
}

// RunResult is the outcome of a test execution. Failing tests are results, not errors.
type RunResult struct {
	Passed   int
	Failed   int
	Skipped  int
	Total    int
	Failures []Failure
	Duration time.Duration
	// ExitCode of the test command; non-zero with zero parsed failures yields a synthetic failure.
	ExitCode int
}

// Succeeded reports whether no test failed.
func (r *RunResult) Succeeded() bool {
	return r != nil && len(r.Failures) == 0
}
