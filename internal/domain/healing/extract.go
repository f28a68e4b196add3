package healing

import (
	"regexp"
	"strings"

	"github.com/target/healwright/internal/domain/model"
)

// quoted matches a single-, double- or backtick-quoted string. RE2 has no backreferences, so each
// quote style gets its own capture group.
const quoted = "(?:'([^']+)'|\"([^\"]+)\"|`([^`]+)`)"

type selectorPattern struct {
	name string
	re   *regexp.Regexp
	// build turns the captured groups into a selector; nil means "first non-empty group as-is".
	build func(groups []string) (string, model.SelectorType)
}

// selectorPatterns are tried in order. Quoted forms come first because they delimit the selector
// exactly; bare-token forms are a best effort on free-form messages.
var selectorPatterns = []selectorPattern{
	{name: "waiting-for-quoted", re: regexp.MustCompile(`(?i)waiting for (?:selector|locator)\s*\(?\s*` + quoted)},
	{
		name: "get-by-test-id",
		re:   regexp.MustCompile(`(?i)getByTestId\(\s*` + quoted),
		build: func(g []string) (string, model.SelectorType) {
			return `[data-testid="` + firstGroup(g) + `"]`, model.SelectorTestID
		},
	},
	{
		name: "get-by-role",
		re:   regexp.MustCompile(`(?i)getByRole\(\s*['"]([^'"]+)['"](?:\s*,\s*\{\s*name:\s*['"]([^'"]+)['"])?`),
		build: func(g []string) (string, model.SelectorType) {
			if len(g) > 1 && g[1] != "" {
				return `role=` + g[0] + `[name="` + g[1] + `"]`, model.SelectorRole
			}
			return "role=" + g[0], model.SelectorRole
		},
	},
	{
		name: "get-by-text",
		re:   regexp.MustCompile(`(?i)getByText\(\s*` + quoted),
		build: func(g []string) (string, model.SelectorType) {
			return "text=" + firstGroup(g), model.SelectorText
		},
	},
	{name: "locator-call", re: regexp.MustCompile(`(?i)locator\(\s*` + quoted)},
	{name: "selector-quoted", re: regexp.MustCompile(`(?i)(?:selector|element|locator)\s*:?\s+` + quoted)},
	{name: "element-not-found", re: regexp.MustCompile(`(?i)element not found:?\s+(\S+)`)},
	{
		name: "no-element-matches",
		re:   regexp.MustCompile(`(?i)(?:no element matches selector|unable to find element|failed to find element matching selector)\s*:?\s+(\S+)`),
	},
	{name: "waiting-for-bare", re: regexp.MustCompile(`(?i)waiting for (?:selector|locator)\s+([#.\[/][^\s]*)`)},
}

// ExtractSelector pulls the failed selector out of a test error message. When nothing matches it
// returns model.UnknownSelector with type UNKNOWN.
func ExtractSelector(message string) (string, model.SelectorType) {
	for _, p := range selectorPatterns {
		m := p.re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		groups := m[1:]
		var (
			selector string
			typ      model.SelectorType
		)
		if p.build != nil {
			selector, typ = p.build(groups)
		} else {
			selector = cleanBareToken(firstGroup(groups))
			typ = model.InferSelectorType(selector)
		}
		if strings.TrimSpace(selector) == "" {
			continue
		}
		return selector, typ
	}
	return model.UnknownSelector, model.SelectorUnknown
}

func firstGroup(groups []string) string {
	for _, g := range groups {
		if g != "" {
			return strings.TrimSpace(g)
		}
	}
	return ""
}

// cleanBareToken strips sentence punctuation that a bare token picks up from the surrounding text.
// CSS selectors never end in '.', ',' or ';'.
func cleanBareToken(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,;")
	return strings.Trim(s, `'"`+"`")
}
