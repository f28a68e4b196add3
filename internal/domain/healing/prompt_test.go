package healing

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/healwright/internal/domain/model"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    model.Suggestion
		wantErr bool
	}{
		{
			name: "plain json",
			text: `{"newSelector":"[data-testid=\"login\"]","selectorType":"TESTID","confidence":0.97,"reasoning":"stable id"}`,
			want: model.Suggestion{
				NewSelector: `[data-testid="login"]`, SelectorType: model.SelectorTestID,
				Confidence: 0.97, Reasoning: "stable id", Source: model.SourceAI,
			},
		},
		{
			name: "fenced json with prose",
			text: "Here you go:\n```json\n{\"newSelector\": \"#sign-in\", \"confidence\": 0.8, \"reasoning\": \"renamed\"}\n```\nThanks",
			want: model.Suggestion{
				NewSelector: "#sign-in", SelectorType: model.SelectorCSS,
				Confidence: 0.8, Reasoning: "renamed", Source: model.SourceAI,
			},
		},
		{
			name: "confidence clamped",
			text: `{"newSelector":"#a","confidence":7}`,
			want: model.Suggestion{NewSelector: "#a", SelectorType: model.SelectorCSS, Confidence: 1, Source: model.SourceAI},
		},
		{name: "empty selector", text: `{"newSelector":"","confidence":0.9}`, wantErr: true},
		{name: "string confidence", text: `{"newSelector":"#a","confidence":"high"}`, wantErr: true},
		{name: "missing confidence", text: `{"newSelector":"#a"}`, wantErr: true},
		{name: "not json", text: "I cannot help with that", wantErr: true},
		{name: "truncated json", text: `{"newSelector":"#a","confidence":0.`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.text)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncateDOM(t *testing.T) {
	assert.Equal(t, "abc", TruncateDOM("abc", 10))
	assert.Equal(t, "abcde", TruncateDOM("abcdefgh", 5))

	multi := strings.Repeat("é", 20)
	cut := TruncateDOM(multi, 7)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, 7, utf8.RuneCountInString(cut))

	long := strings.Repeat("x", DefaultDOMBudget+50)
	assert.Len(t, TruncateDOM(long, 0), DefaultDOMBudget)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(Context{FailedSelector: "#a", ErrorMessage: " boom ", DOMSnapshot: strings.Repeat("y", 100)}, 10)
	assert.Contains(t, p, "Failed selector: #a")
	assert.Contains(t, p, "boom")
	assert.Contains(t, p, strings.Repeat("y", 10))
	assert.NotContains(t, p, strings.Repeat("y", 11))

	assert.Contains(t, BuildPrompt(Context{}, 10), "(not captured)")
}
