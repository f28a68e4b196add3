package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Decision is the outcome assigned to a healing finding.
type Decision string

const (
	DecisionAnalyzing    Decision = "ANALYZING"
	DecisionHealedAuto   Decision = "HEALED_AUTO"
	DecisionNeedsReview  Decision = "NEEDS_REVIEW"
	DecisionBugDetected  Decision = "BUG_DETECTED"
	DecisionRemovedLegit Decision = "REMOVED_LEGIT"
	DecisionFailed       Decision = "FAILED"
	DecisionIgnored      Decision = "IGNORED"
)

// Finding errors.
var (
	ErrFindingNotFound = errors.New("healing finding not found")
	// ErrFindingDecided is returned when a decision is applied to a finding that already has one.
	ErrFindingDecided = errors.New("healing finding already decided")
)

// Valid returns true if the decision is known.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAnalyzing, DecisionHealedAuto, DecisionNeedsReview, DecisionBugDetected,
		DecisionRemovedLegit, DecisionFailed, DecisionIgnored:
		return true
	default:
		return false
	}
}

// Terminal reports whether the decision is final.
func (d Decision) Terminal() bool {
	return d.Valid() && d != DecisionAnalyzing
}

// findingNamespace scopes deterministic finding identifiers.
var findingNamespace = uuid.MustParse("6f1d1c3e-5b0a-4d7e-9a51-3c2f0e8b7d44")

// FindingID returns the stable identifier of the finding for a failure within a test run,
// so that re-delivered jobs address the same finding row.
func FindingID(testRunID string, f Failure) string {
	key := strings.Join([]string{testRunID, f.TestFile, f.TestName, f.FailedSelector}, "\x00")
	return uuid.NewSHA1(findingNamespace, []byte(key)).String()
}

// HealingFinding records the healing analysis of one failure.
type HealingFinding struct {
	ID                   string           `json:"id"`
	TestRunID            string           `json:"testRunId"`
	ProjectID            string           `json:"projectId"`
	Failure              Failure          `json:"failure"`
	ProposedSelector     *string          `json:"proposedSelector,omitempty"`
	ProposedSelectorType *SelectorType    `json:"proposedSelectorType,omitempty"`
	Confidence           *float64         `json:"confidence,omitempty"`
	Reasoning            *string          `json:"reasoning,omitempty"`
	Source               SuggestionSource `json:"source,omitempty"`
	Decision             Decision         `json:"decision"`
	PRURL                *string          `json:"prUrl,omitempty"`
	PRBranch             *string          `json:"prBranch,omitempty"`
	PublishReason        *string          `json:"publishReason,omitempty"`
	AppliedAt            *time.Time       `json:"appliedAt,omitempty"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// HasProposedSelector reports whether the finding carries a usable proposed selector.
func (f *HealingFinding) HasProposedSelector() bool {
	if f == nil || f.ProposedSelector == nil {
		return false
	}
	sel := strings.TrimSpace(*f.ProposedSelector)
	return sel != "" && sel != UnknownSelector
}

// Published reports whether a pull request has already been recorded for the finding.
func (f *HealingFinding) Published() bool {
	return f != nil && f.PRURL != nil && *f.PRURL != ""
}

// CreateFindingParams creates a finding in the ANALYZING state.
type CreateFindingParams struct {
	ID        string
	TestRunID string
	ProjectID string
	Failure   Failure
}

// DecideFindingParams applies a suggestion and its decision to an analyzing finding.
type DecideFindingParams struct {
	ID         string
	Suggestion Suggestion
	Decision   Decision
}

// AttachPullRequestParams records the pull request opened for a finding.
type AttachPullRequestParams struct {
	FindingID string
	URL       string
	Branch    string
}

// PullRequestRecord is the persisted side effect of publishing a finding.
type PullRequestRecord struct {
	FindingID  string    `json:"findingId"`
	URL        string    `json:"url"`
	BranchName string    `json:"branchName"`
	CreatedAt  time.Time `json:"createdAt"`
}
