package healing

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/target/healwright/internal/domain/model"
)

// Heuristic confidences.
const (
	TestIDConfidence   = 0.88
	AriaConfidence     = 0.82
	FallbackConfidence = 0.5
)

// testIDAttributes are the stable test-identifier attributes, most conventional first.
var testIDAttributes = []string{"data-testid", "data-test-id", "data-test", "data-cy"}

// HeuristicProposer derives a replacement selector from the DOM alone. It never returns an error.
type HeuristicProposer struct{}

// Name identifies the proposer in logs.
func (HeuristicProposer) Name() string { return "heuristic" }

// Propose implements Proposer.
func (HeuristicProposer) Propose(_ context.Context, in Context) (model.Suggestion, error) {
	return Heuristic(in), nil
}

type candidate struct {
	attr  string
	value string
	role  string
	order int
}

// Heuristic picks a test-id attribute if the DOM has one, then an aria-label, and otherwise keeps
// the original selector at low confidence. Among several candidates the one sharing the most
// words with the failed selector wins, ties going to document order.
func Heuristic(in Context) model.Suggestion {
	testIDs, labels := scanDOM(in.DOMSnapshot)
	tokens := selectorTokens(in.FailedSelector)

	if c, ok := bestCandidate(testIDs, tokens); ok {
		return model.Suggestion{
			NewSelector:  fmt.Sprintf(`[%s="%s"]`, c.attr, escapeAttr(c.value)),
			SelectorType: model.SelectorTestID,
			Confidence:   TestIDConfidence,
			Reasoning:    fmt.Sprintf("Found stable test identifier %s=%q in the page", c.attr, c.value),
			Source:       model.SourceHeuristic,
		}
	}

	if c, ok := bestCandidate(labels, tokens); ok {
		selector := fmt.Sprintf(`[aria-label="%s"]`, escapeAttr(c.value))
		if c.role != "" {
			selector = fmt.Sprintf(`role=%s[name="%s"]`, c.role, escapeAttr(c.value))
		}
		return model.Suggestion{
			NewSelector:  selector,
			SelectorType: model.SelectorRole,
			Confidence:   AriaConfidence,
			Reasoning:    fmt.Sprintf("Found accessibility label %q in the page", c.value),
			Source:       model.SourceHeuristic,
		}
	}

	typ := model.InferSelectorType(in.FailedSelector)
	return model.Suggestion{
		NewSelector:  in.FailedSelector,
		SelectorType: typ,
		Confidence:   FallbackConfidence,
		Reasoning:    "No stable alternative selector was found in the page; kept the original selector",
		Source:       model.SourceHeuristic,
	}
}

func scanDOM(dom string) ([]candidate, []candidate) {
	if strings.TrimSpace(dom) == "" {
		return nil, nil
	}
	root, err := html.Parse(strings.NewReader(dom))
	if err != nil {
		return nil, nil
	}

	var testIDs, labels []candidate
	order := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			order++
			if attr, value, ok := testIDAttr(n); ok {
				testIDs = append(testIDs, candidate{attr: attr, value: value, order: order})
			}
			if label := strings.TrimSpace(attrValue(n, "aria-label")); label != "" {
				labels = append(labels, candidate{attr: "aria-label", value: label, role: elementRole(n), order: order})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return testIDs, labels
}

func testIDAttr(n *html.Node) (string, string, bool) {
	for _, name := range testIDAttributes {
		if v := strings.TrimSpace(attrValue(n, name)); v != "" {
			return name, v, true
		}
	}
	return "", "", false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// elementRole returns the explicit role or the implicit ARIA role of common interactive elements.
func elementRole(n *html.Node) string {
	if r := strings.TrimSpace(attrValue(n, "role")); r != "" {
		return strings.Fields(r)[0]
	}
	switch n.DataAtom {
	case atom.Button:
		return "button"
	case atom.A:
		if attrValue(n, "href") != "" {
			return "link"
		}
	case atom.Select:
		return "combobox"
	case atom.Textarea:
		return "textbox"
	case atom.Input:
		switch strings.ToLower(attrValue(n, "type")) {
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		case "submit", "button", "reset":
			return "button"
		case "", "text", "email", "search", "tel", "url":
			return "textbox"
		}
	}
	return ""
}

func bestCandidate(cands []candidate, tokens map[string]struct{}) (candidate, bool) {
	if len(cands) == 0 {
		return candidate{}, false
	}
	best := cands[0]
	bestScore := overlap(best.value, tokens)
	for _, c := range cands[1:] {
		if s := overlap(c.value, tokens); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, true
}

func overlap(value string, tokens map[string]struct{}) int {
	if len(tokens) == 0 {
		return 0
	}
	score := 0
	for t := range selectorTokens(value) {
		if _, ok := tokens[t]; ok {
			score++
		}
	}
	return score
}

// selectorTokens splits a selector or attribute value into lower-case words.
func selectorTokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) > 1 {
			out[w] = struct{}{}
		}
	}
	return out
}

func escapeAttr(v string) string {
	return strings.ReplaceAll(v, `"`, `\"`)
}
