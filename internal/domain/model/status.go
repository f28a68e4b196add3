package model

import (
	"errors"
	"strings"
)

// RunStatus is the externally visible progress of a test run.
type RunStatus struct {
	Found          bool           `json:"found"`
	TestRunID      string         `json:"testRunId"`
	JobID          string         `json:"jobId,omitempty"`
	QueueState     JobStatus      `json:"queueState,omitempty"`
	RunState       TestRunStatus  `json:"runState,omitempty"`
	Progress       int            `json:"progress"`
	ResultsSummary ResultsSummary `json:"resultsSummary"`
	LastError      *string        `json:"lastError,omitempty"`
}

// SuggestRequest asks for a one-off healing suggestion without running any tests.
type SuggestRequest struct {
	Selector     string `json:"selector,omitempty"`
	ErrorMessage string `json:"errorMessage"`
	DOMSnapshot  string `json:"domSnapshot"`
}

// Validate validates the SuggestRequest fields.
func (r *SuggestRequest) Validate() error {
	if r == nil {
		return errors.New("suggest request is required")
	}
	if strings.TrimSpace(r.Selector) == "" && strings.TrimSpace(r.ErrorMessage) == "" {
		return errors.New("selector or errorMessage is required")
	}
	return nil
}

// SuggestResponse is the synchronous healing suggestion.
type SuggestResponse struct {
	FixedSelector string       `json:"fixedSelector"`
	Confidence    float64      `json:"confidence"`
	SelectorType  SelectorType `json:"selectorType"`
	Explanation   string       `json:"explanation"`
	NeedsReview   bool         `json:"needsReview"`
}
