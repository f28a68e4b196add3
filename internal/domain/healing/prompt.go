package healing

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/target/healwright/internal/domain/model"
)

// DefaultDOMBudget is the number of DOM characters sent to a generative backend.
const DefaultDOMBudget = 8000

// ErrMalformedResponse is returned when a generative backend answers with something that is not a
// usable suggestion.
var ErrMalformedResponse = errors.New("malformed healing response")

// SystemPrompt instructs the backend to answer with a single JSON object.
const SystemPrompt = `You repair broken UI test selectors. Given a selector that no longer matches, ` +
	`the test error and a snapshot of the page, propose the most stable replacement selector. ` +
	`Prefer data-testid attributes, then ARIA roles with accessible names, then text, then CSS. ` +
	`Answer with only a JSON object: {"newSelector": string, "selectorType": ` +
	`"CSS"|"XPATH"|"TESTID"|"ROLE"|"TEXT", "confidence": number between 0 and 1, "reasoning": string}.`

// TruncateDOM cuts the DOM to at most budget characters without splitting a UTF-8 sequence.
func TruncateDOM(dom string, budget int) string {
	if budget <= 0 {
		budget = DefaultDOMBudget
	}
	if utf8.RuneCountInString(dom) <= budget {
		return dom
	}
	count := 0
	for i := range dom {
		if count == budget {
			return dom[:i]
		}
		count++
	}
	return dom
}

// BuildPrompt renders the user prompt for a healing request.
func BuildPrompt(in Context, budget int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Failed selector: %s\n", in.FailedSelector)
	fmt.Fprintf(&b, "Error message:\n%s\n\n", strings.TrimSpace(in.ErrorMessage))
	dom := TruncateDOM(in.DOMSnapshot, budget)
	if strings.TrimSpace(dom) == "" {
		b.WriteString("DOM snapshot: (not captured)\n")
	} else {
		fmt.Fprintf(&b, "DOM snapshot:\n%s\n", dom)
	}
	return b.String()
}

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// ParseResponse extracts a suggestion from a backend's text answer. Markdown code fences around the
// JSON are tolerated. The answer must carry a non-empty newSelector and a numeric confidence.
func ParseResponse(text string) (model.Suggestion, error) {
	body := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}
	if !gjson.Valid(body) {
		return model.Suggestion{}, fmt.Errorf("%w: not valid JSON", ErrMalformedResponse)
	}

	selector := gjson.Get(body, "newSelector")
	if selector.Type != gjson.String || strings.TrimSpace(selector.String()) == "" {
		return model.Suggestion{}, fmt.Errorf("%w: missing newSelector", ErrMalformedResponse)
	}
	confidence := gjson.Get(body, "confidence")
	if confidence.Type != gjson.Number {
		return model.Suggestion{}, fmt.Errorf("%w: confidence is not a number", ErrMalformedResponse)
	}

	newSelector := strings.TrimSpace(selector.String())
	typ := model.InferSelectorType(newSelector)
	if t := gjson.Get(body, "selectorType"); t.Exists() && strings.TrimSpace(t.String()) != "" {
		typ = model.ParseSelectorType(t.String())
	}

	return model.Suggestion{
		NewSelector:  newSelector,
		SelectorType: typ,
		Confidence:   clamp01(confidence.Float()),
		Reasoning:    strings.TrimSpace(gjson.Get(body, "reasoning").String()),
		Source:       model.SourceAI,
	}, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
