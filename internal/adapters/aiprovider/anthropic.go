// Package aiprovider adapts generative model SDKs to healing.Proposer.
package aiprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/target/healwright/internal/domain/healing"
	"github.com/target/healwright/internal/domain/model"
)

// AnthropicOptions configures an AnthropicProposer.
type AnthropicOptions struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// BaseURL overrides the API endpoint.
	BaseURL string
	// MaxRetries is passed to the SDK; negative keeps the SDK default.
	MaxRetries int
}

// AnthropicProposer asks a Claude model for a replacement selector.
type AnthropicProposer struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicProposer builds a proposer; an API key is required.
func NewAnthropicProposer(opts AnthropicOptions) (*AnthropicProposer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("anthropic api key is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(opts.MaxRetries))
	}

	p := &AnthropicProposer{
		client:    anthropic.NewClient(reqOpts...),
		model:     anthropic.Model(opts.Model),
		maxTokens: opts.MaxTokens,
	}
	if p.model == "" {
		p.model = anthropic.ModelClaudeSonnet4_5
	}
	if p.maxTokens <= 0 {
		p.maxTokens = 1024
	}
	return p, nil
}

// Name implements healing.Proposer.
func (p *AnthropicProposer) Name() string { return "anthropic" }

// Propose sends one message and parses the first text block of the answer.
func (p *AnthropicProposer) Propose(ctx context.Context, in healing.Context) (model.Suggestion, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: healing.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt(in))),
		},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return model.Suggestion{}, fmt.Errorf("anthropic messages: %w", err)
	}
	return healing.ParseResponse(firstText(resp))
}

func firstText(resp *anthropic.Message) string {
	for i := range resp.Content {
		if text, ok := resp.Content[i].AsAny().(anthropic.TextBlock); ok {
			return text.Text
		}
	}
	return ""
}

// prompt renders the user prompt. The engine has already applied the DOM budget.
func prompt(in healing.Context) string {
	return healing.BuildPrompt(in, len(in.DOMSnapshot)+1)
}
