package aiprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/target/healwright/internal/domain/healing"
	"github.com/target/healwright/internal/domain/model"
)

// GeminiOptions configures a GeminiProposer.
type GeminiOptions struct {
	APIKey    string
	Model     string
	MaxTokens int32
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// GeminiProposer asks a Gemini model for a replacement selector.
type GeminiProposer struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGeminiProposer builds a proposer against the Gemini API backend.
func NewGeminiProposer(ctx context.Context, opts GeminiOptions) (*GeminiProposer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      opts.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	p := &GeminiProposer{client: client, model: opts.Model, maxTokens: opts.MaxTokens}
	if p.model == "" {
		p.model = "gemini-2.5-flash"
	}
	if p.maxTokens <= 0 {
		p.maxTokens = 1024
	}
	return p, nil
}

// Name implements healing.Proposer.
func (p *GeminiProposer) Name() string { return "gemini" }

// Propose asks for a JSON answer and parses it.
func (p *GeminiProposer) Propose(ctx context.Context, in healing.Context) (model.Suggestion, error) {
	temperature := float32(0)
	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromText(prompt(in), genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(healing.SystemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       &temperature,
			MaxOutputTokens:   p.maxTokens,
		},
	)
	if err != nil {
		return model.Suggestion{}, fmt.Errorf("gemini generate: %w", err)
	}
	return healing.ParseResponse(resp.Text())
}
