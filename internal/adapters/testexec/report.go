package testexec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/healwright/internal/domain/healing"
	"github.com/target/healwright/internal/domain/model"
)

// Attachment names test fixtures use to hand DOM snapshots to the healer.
const (
	AttachmentDOMBefore = "dom-before"
	AttachmentDOMAfter  = "dom-after"
)

var errNoReport = errors.New("no playwright report found")

// report is the subset of a Playwright JSON report healwright consumes.
type report struct {
	Passed   int
	Failed   int
	Skipped  int
	Failures []model.Failure
}

func (r report) total() int { return r.Passed + r.Failed + r.Skipped }

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// parseReport extracts counts and failures from a Playwright JSON report. baseDir resolves
// attachments stored as files.
func parseReport(data []byte, baseDir string) (report, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return report{}, fmt.Errorf("decode report: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return report{}, errors.New("decode report: not a JSON object")
	}
	suites, err := search("suites", doc)
	if err != nil || suites == nil {
		return report{}, errNoReport
	}

	var out report
	stats, _ := search("stats", doc)
	out.Passed = asInt(stats, "expected") + asInt(stats, "flaky")
	out.Failed = asInt(stats, "unexpected")
	out.Skipped = asInt(stats, "skipped")

	walkSuites(suites, func(spec any) {
		if f, ok := failureFromSpec(spec, baseDir); ok {
			out.Failures = append(out.Failures, f)
		}
	})
	if out.Failed < len(out.Failures) {
		out.Failed = len(out.Failures)
	}
	return out, nil
}

func search(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

func walkSuites(suites any, visit func(spec any)) {
	list, _ := suites.([]any)
	for _, suite := range list {
		specs, _ := search("specs", suite)
		if specList, ok := specs.([]any); ok {
			for _, spec := range specList {
				visit(spec)
			}
		}
		if nested, _ := search("suites", suite); nested != nil {
			walkSuites(nested, visit)
		}
	}
}

// failureFromSpec returns the last attempt of the first unexpected test of a spec.
func failureFromSpec(spec any, baseDir string) (model.Failure, bool) {
	result, err := search("tests[?status=='unexpected'] | [0].results[-1]", spec)
	if err != nil || result == nil {
		return model.Failure{}, false
	}

	title := field(spec, "title")
	file := field(spec, "file")
	message := field(result, "error.message || errors[0].message || ''")
	message = strings.TrimSpace(ansiEscape.ReplaceAllString(message, ""))
	if message == "" {
		message = "test failed without an error message"
	}

	selector, typ := healing.ExtractSelector(message)
	f := model.Failure{
		TestName:       title,
		TestFile:       file,
		FailedSelector: selector,
		SelectorType:   typ,
		ErrorMessage:   message,
	}
	attachments, _ := search("attachments", result)
	if list, ok := attachments.([]any); ok {
		for _, a := range list {
			switch field(a, "name") {
			case AttachmentDOMBefore:
				f.DOMSnapshotBefore = attachmentBody(a, baseDir)
			case AttachmentDOMAfter:
				f.DOMSnapshotAfter = attachmentBody(a, baseDir)
			}
		}
	}
	return f, true
}

// attachmentBody decodes an inline (base64) attachment or reads one stored on disk. Paths outside
// baseDir are ignored.
func attachmentBody(a any, baseDir string) string {
	if body := field(a, "body"); body != "" {
		if decoded, err := base64.StdEncoding.DecodeString(body); err == nil {
			return string(decoded)
		}
		return body
	}
	path := field(a, "path")
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	rel, err := filepath.Rel(baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	data, err := os.ReadFile(path) // #nosec G304 - confined to the workspace above
	if err != nil {
		return ""
	}
	return string(data)
}

// extractJSON returns the outermost JSON object embedded in command output, for reporters that
// print to stdout.
func extractJSON(output []byte) []byte {
	start := bytes.IndexByte(output, '{')
	end := bytes.LastIndexByte(output, '}')
	if start < 0 || end <= start {
		return nil
	}
	return output[start : end+1]
}

// field evaluates expr against data and returns the result when it is a string.
func field(data any, expr string) string {
	v, err := search(expr, data)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func asInt(obj any, key string) int {
	v, _ := search(key, obj)
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}
