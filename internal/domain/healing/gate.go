// Package healing holds the selector-healing rules: selector extraction, the proposer chain and
// the confidence gate that turns a suggestion into a decision.
package healing

import "github.com/target/healwright/internal/domain/model"

const (
	// AutoHealThreshold is the minimum confidence at which a fix is applied without review.
	AutoHealThreshold = 0.95
	// ReviewThreshold is the minimum confidence at which a fix is offered for human review.
	// Below it the failure is treated as a probable application bug.
	ReviewThreshold = 0.70
)

// Decide maps a suggestion's confidence to a decision. It is a pure function of its inputs.
func Decide(confidence float64, hasProposedSelector bool) model.Decision {
	switch {
	case !hasProposedSelector:
		return model.DecisionNeedsReview
	case confidence >= AutoHealThreshold:
		return model.DecisionHealedAuto
	case confidence >= ReviewThreshold:
		return model.DecisionNeedsReview
	default:
		return model.DecisionBugDetected
	}
}

// DecideSuggestion applies Decide to a suggestion.
func DecideSuggestion(s model.Suggestion) model.Decision {
	return Decide(s.Confidence, s.HasSelector())
}
