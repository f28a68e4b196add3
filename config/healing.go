package config

import (
	"strings"
	"time"
)

// HealingProvider selects the generative backend of the healing engine.
type HealingProvider string

const (
	HealingProviderNone      HealingProvider = "none"
	HealingProviderAnthropic HealingProvider = "anthropic"
	HealingProviderGemini    HealingProvider = "gemini"
)

// HealingConfig configures selector healing. Variables are read with the HEALING_ prefix.
type HealingConfig struct {
	// Provider is anthropic, gemini or none. Empty picks whichever API key is set.
	Provider HealingProvider `env:"PROVIDER"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL"   envDefault:"claude-sonnet-4-5"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	GeminiModel     string `env:"GEMINI_MODEL"      envDefault:"gemini-2.5-flash"`

	// MaxTokens caps the generated answer.
	MaxTokens int64 `env:"MAX_TOKENS" envDefault:"1024"`

	// Timeout bounds a single generative call.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`

	// DOMBudget is the number of DOM characters sent to the backend.
	DOMBudget int `env:"DOM_BUDGET" envDefault:"8000"`

	// CacheTTL is how long accepted suggestions stay in Redis.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"24h"`
}

// Sanitize resolves the provider and applies guardrails.
func (h *HealingConfig) Sanitize() {
	h.AnthropicAPIKey = strings.TrimSpace(h.AnthropicAPIKey)
	h.GeminiAPIKey = strings.TrimSpace(h.GeminiAPIKey)
	h.Provider = HealingProvider(strings.ToLower(strings.TrimSpace(string(h.Provider))))

	switch h.Provider {
	case HealingProviderAnthropic:
		if h.AnthropicAPIKey == "" {
			h.Provider = HealingProviderNone
		}
	case HealingProviderGemini:
		if h.GeminiAPIKey == "" {
			h.Provider = HealingProviderNone
		}
	case HealingProviderNone:
	default:
		switch {
		case h.AnthropicAPIKey != "":
			h.Provider = HealingProviderAnthropic
		case h.GeminiAPIKey != "":
			h.Provider = HealingProviderGemini
		default:
			h.Provider = HealingProviderNone
		}
	}

	if h.MaxTokens < 128 {
		h.MaxTokens = 128
	}
	if h.Timeout <= 0 {
		h.Timeout = 30 * time.Second
	}
	if h.DOMBudget < 500 {
		h.DOMBudget = 500
	}
	if h.CacheTTL <= 0 {
		h.CacheTTL = 24 * time.Hour
	}
}

// GitHubConfig configures the pull-request adapter. Variables are read with the GITHUB_ prefix.
type GitHubConfig struct {
	// BaseURL points at GitHub Enterprise; empty means github.com.
	BaseURL string        `env:"BASE_URL"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"20s"`
	// PublishLockTTL bounds how long one finding's publish attempt holds its lock.
	PublishLockTTL time.Duration `env:"PUBLISH_LOCK_TTL" envDefault:"2m"`
	// TokenEncryptionKey opens access tokens sealed at rest. Hex (64 chars) or any passphrase.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
}

// Sanitize applies guardrails to GitHub configuration values.
func (g *GitHubConfig) Sanitize() {
	g.BaseURL = strings.TrimSpace(g.BaseURL)
	g.TokenEncryptionKey = strings.TrimSpace(g.TokenEncryptionKey)
	if g.BaseURL != "" && !strings.HasSuffix(g.BaseURL, "/") {
		g.BaseURL += "/"
	}
	if g.Timeout <= 0 {
		g.Timeout = 20 * time.Second
	}
	if g.PublishLockTTL < 10*time.Second {
		g.PublishLockTTL = 10 * time.Second
	}
}
