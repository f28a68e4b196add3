package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/healwright/internal/bootstrap"
	"github.com/target/healwright/internal/data/cryptoutil"
	"github.com/target/healwright/internal/domain/model"
)

func heuristicsOnly(t *testing.T) {
	t.Helper()
	t.Setenv("HEALING_PROVIDER", "none")
	t.Setenv("HEALING_ANTHROPIC_API_KEY", "")
	t.Setenv("HEALING_GEMINI_API_KEY", "")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestSuggest_Heuristics(t *testing.T) {
	heuristicsOnly(t)

	out, _, err := execute(t, "suggest",
		"--selector", "#submit-form",
		"--error", "locator('#submit-form') timed out",
		"--dom", `<form><button data-testid="submit-form">Go</button></form>`,
	)
	require.NoError(t, err)

	var resp model.SuggestResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, `[data-testid="submit-form"]`, resp.FixedSelector)
	assert.Equal(t, model.SelectorTestID, resp.SelectorType)
	assert.Positive(t, resp.Confidence)
}

func TestSuggest_DOMFile(t *testing.T) {
	heuristicsOnly(t)

	path := filepath.Join(t.TempDir(), "dom.html")
	require.NoError(t, os.WriteFile(path, []byte(`<div><a data-testid="checkout">Buy</a></div>`), 0o600))

	out, _, err := execute(t, "suggest", "--selector", ".buy-btn", "--dom-file", path)
	require.NoError(t, err)
	assert.Contains(t, out, `[data-testid=\"checkout\"]`)
}

func TestSuggest_Errors(t *testing.T) {
	heuristicsOnly(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "nothing to heal", args: []string{"suggest", "--dom", "<div></div>"}, want: "selector or errorMessage is required"},
		{name: "both dom sources", args: []string{"suggest", "--selector", "#a", "--dom", "<p/>", "--dom-file", "x.html"}, want: "mutually exclusive"},
		{name: "missing dom file", args: []string{"suggest", "--selector", "#a", "--dom-file", filepath.Join(t.TempDir(), "nope.html")}, want: "read dom file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSealToken(t *testing.T) {
	heuristicsOnly(t)
	key := strings.Repeat("0f", 32)
	t.Setenv("GITHUB_TOKEN_ENCRYPTION_KEY", key)

	root := newRootCmd()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader("ghp_abc\n"))
	root.SetArgs([]string{"seal-token"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	sealed := strings.TrimSpace(stdout.String())
	require.True(t, cryptoutil.IsSealed(sealed))
	got, err := bootstrap.CreateTokenCipher(key, nil).Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ghp_abc", got)
}

func TestSealToken_NoKey(t *testing.T) {
	heuristicsOnly(t)
	t.Setenv("GITHUB_TOKEN_ENCRYPTION_KEY", "")

	_, _, err := execute(t, "seal-token")
	assert.ErrorContains(t, err, "GITHUB_TOKEN_ENCRYPTION_KEY")
}

func TestEnqueue_RequiresFlags(t *testing.T) {
	heuristicsOnly(t)

	_, _, err := execute(t, "enqueue", "--project", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s)")
}

func TestRun_ExitCodes(t *testing.T) {
	heuristicsOnly(t)

	assert.Equal(t, 1, run(context.Background(), []string{"status"}))
	assert.Equal(t, 1, run(context.Background(), []string{"no-such-command"}))
}
