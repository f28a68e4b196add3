package aiprovider

import (
	"context"
	"fmt"

	"github.com/target/healwright/config"
	"github.com/target/healwright/internal/domain/healing"
)

// New returns the proposer selected by cfg, or nil when no generative backend is configured.
// cfg is expected to be sanitized.
func New(ctx context.Context, cfg config.HealingConfig) (healing.Proposer, error) {
	switch cfg.Provider {
	case config.HealingProviderAnthropic:
		p, err := NewAnthropicProposer(AnthropicOptions{
			APIKey:     cfg.AnthropicAPIKey,
			Model:      cfg.AnthropicModel,
			MaxTokens:  cfg.MaxTokens,
			MaxRetries: 1,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.HealingProviderGemini:
		p, err := NewGeminiProposer(ctx, GeminiOptions{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.GeminiModel,
			MaxTokens: int32(min(cfg.MaxTokens, 1<<20)), // #nosec G115 - clamped above
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.HealingProviderNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown healing provider %q", cfg.Provider)
	}
}
