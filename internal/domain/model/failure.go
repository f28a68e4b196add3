package model

import "strings"

// SelectorType classifies how a selector locates its element.
type SelectorType string

const (
	SelectorCSS     SelectorType = "CSS"
	SelectorXPath   SelectorType = "XPATH"
	SelectorTestID  SelectorType = "TESTID"
	SelectorRole    SelectorType = "ROLE"
	SelectorText    SelectorType = "TEXT"
	SelectorUnknown SelectorType = "UNKNOWN"
)

// UnknownSelector is recorded when no selector could be extracted from a failure message.
const UnknownSelector = "unknown-selector"

// Valid returns true if the selector type is known.
func (t SelectorType) Valid() bool {
	switch t {
	case SelectorCSS, SelectorXPath, SelectorTestID, SelectorRole, SelectorText, SelectorUnknown:
		return true
	default:
		return false
	}
}

// ParseSelectorType normalises free-form selector type names, defaulting to CSS.
func ParseSelectorType(s string) SelectorType {
	t := SelectorType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case "TEST_ID", "TEST-ID", "DATA-TESTID":
		return SelectorTestID
	case "ARIA", "ARIA-LABEL":
		return SelectorRole
	}
	if t.Valid() {
		return t
	}
	return SelectorCSS
}

// InferSelectorType guesses the selector type from its syntax.
func InferSelectorType(selector string) SelectorType {
	s := strings.TrimSpace(selector)
	lower := strings.ToLower(s)
	switch {
	case s == "" || s == UnknownSelector:
		return SelectorUnknown
	case strings.HasPrefix(s, "//"), strings.HasPrefix(s, "(//"), strings.HasPrefix(lower, "xpath="):
		return SelectorXPath
	case strings.Contains(lower, "data-testid"), strings.Contains(lower, "data-test-id"),
		strings.HasPrefix(lower, "getbytestid"):
		return SelectorTestID
	case strings.HasPrefix(lower, "role="), strings.HasPrefix(lower, "getbyrole"),
		strings.Contains(lower, "aria-label"):
		return SelectorRole
	case strings.HasPrefix(lower, "text="), strings.HasPrefix(lower, "getbytext"):
		return SelectorText
	default:
		return SelectorCSS
	}
}

// Failure is the immutable evidence of one failed test produced by a test execution.
type Failure struct {
	TestName          string       `json:"testName"`
	TestFile          string       `json:"testFile"`
	FailedSelector    string       `json:"failedSelector"`
	SelectorType      SelectorType `json:"selectorType"`
	ErrorMessage      string       `json:"errorMessage"`
	DOMSnapshotBefore string       `json:"domSnapshotBefore,omitempty"`
	DOMSnapshotAfter  string       `json:"domSnapshotAfter,omitempty"`
}

// HasSelector reports whether a concrete selector was extracted for the failure.
func (f Failure) HasSelector() bool {
	s := strings.TrimSpace(f.FailedSelector)
	return s != "" && s != UnknownSelector
}

// DOMSnapshot returns the best available DOM evidence, preferring the post-failure snapshot.
func (f Failure) DOMSnapshot() string {
	if strings.TrimSpace(f.DOMSnapshotAfter) != "" {
		return f.DOMSnapshotAfter
	}
	return f.DOMSnapshotBefore
}

// SuggestionSource names the strategy that produced a selector suggestion.
type SuggestionSource string

const (
	SourceAI        SuggestionSource = "ai"
	SourceHeuristic SuggestionSource = "heuristic"
)

// Suggestion is a proposed replacement selector.
type Suggestion struct {
	NewSelector  string           `json:"newSelector"`
	SelectorType SelectorType     `json:"selectorType"`
	Confidence   float64          `json:"confidence"`
	Reasoning    string           `json:"reasoning"`
	Source       SuggestionSource `json:"source"`
}

// HasSelector reports whether the suggestion proposes a usable selector. The unknown-selector
// placeholder does not count.
func (s Suggestion) HasSelector() bool {
	sel := strings.TrimSpace(s.NewSelector)
	return sel != "" && sel != UnknownSelector
}
