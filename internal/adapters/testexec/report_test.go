package testexec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/healwright/internal/domain/model"
)

func TestParseReport(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "report.json"))
	require.NoError(t, err)

	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "snapshots"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(base, "snapshots", "before.html"), []byte("<button id=\"login-btn\">"), 0o600))

	rep, err := parseReport(data, base)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Passed)
	assert.Equal(t, 2, rep.Failed)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 4, rep.total())
	require.Len(t, rep.Failures, 2)

	login := rep.Failures[0]
	assert.Equal(t, "logs in", login.TestName)
	assert.Equal(t, "tests/login.spec.ts", login.TestFile)
	assert.Equal(t, "#login-btn", login.FailedSelector)
	assert.Equal(t, model.SelectorCSS, login.SelectorType)
	assert.NotContains(t, login.ErrorMessage, "\x1b[", "ansi codes stripped")
	assert.Contains(t, login.ErrorMessage, "timeout 30000ms exceeded", "last attempt wins")
	assert.Equal(t, `<button data-testid="login">Log in</button>`, login.DOMSnapshotAfter)
	assert.Equal(t, `<button id="login-btn">`, login.DOMSnapshotBefore)

	pay := rep.Failures[1]
	assert.Equal(t, "pays", pay.TestName)
	assert.Equal(t, `//div[@id="pay"]`, pay.FailedSelector)
	assert.Equal(t, model.SelectorXPath, pay.SelectorType)
	assert.Empty(t, pay.DOMSnapshot())
}

func TestParseReport_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "Running 3 tests"},
		{name: "array", data: `[1,2]`},
		{name: "no suites", data: `{"config":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseReport([]byte(tt.data), t.TempDir())
			require.Error(t, err)
		})
	}
}

func TestAttachmentBody_OutsideBaseDir(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.html")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	assert.Empty(t, attachmentBody(map[string]any{"path": outside}, base))
	assert.Empty(t, attachmentBody(map[string]any{"path": "../secret.html"}, base))
	assert.Equal(t, "<p>", attachmentBody(map[string]any{"body": "<p>"}, base), "non-base64 body kept raw")
}

func TestExtractJSON(t *testing.T) {
	out := []byte("Running 1 test\n{\"suites\":[{\"specs\":[]}]}\n")
	assert.JSONEq(t, `{"suites":[{"specs":[]}]}`, string(extractJSON(out)))
	assert.Nil(t, extractJSON([]byte("no json here")))
	assert.Nil(t, extractJSON([]byte("} backwards {")))
}
