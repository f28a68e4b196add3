package healing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/target/healwright/internal/domain/model"
)

// Context is the evidence a proposer works from.
type Context struct {
	FailedSelector string
	ErrorMessage   string
	DOMSnapshot    string
}

// Proposer proposes a replacement selector. Implementations may fail; the Engine absorbs failures.
type Proposer interface {
	Name() string
	Propose(ctx context.Context, in Context) (model.Suggestion, error)
}

// SuggestionCache remembers accepted generative suggestions so retried jobs see the same answer.
type SuggestionCache interface {
	Get(ctx context.Context, key string) (model.Suggestion, bool, error)
	Set(ctx context.Context, key string, s model.Suggestion, ttl time.Duration) error
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Primary is the generative proposer. Nil means heuristics only.
	Primary Proposer
	// Fallback defaults to HeuristicProposer.
	Fallback  Proposer
	Cache     SuggestionCache
	CacheTTL  time.Duration
	Timeout   time.Duration
	DOMBudget int
	Logger    *slog.Logger
}

// Engine heals selectors: the primary proposer first, the deterministic fallback otherwise.
type Engine struct {
	primary   Proposer
	fallback  Proposer
	cache     SuggestionCache
	cacheTTL  time.Duration
	timeout   time.Duration
	domBudget int
	logger    *slog.Logger
}

// NewEngine constructs an Engine with defaults applied.
func NewEngine(opts EngineOptions) *Engine {
	e := &Engine{
		primary:   opts.Primary,
		fallback:  opts.Fallback,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		timeout:   opts.Timeout,
		domBudget: opts.DOMBudget,
		logger:    opts.Logger,
	}
	if e.fallback == nil {
		e.fallback = HeuristicProposer{}
	}
	if e.timeout <= 0 {
		e.timeout = 30 * time.Second
	}
	if e.cacheTTL <= 0 {
		e.cacheTTL = 24 * time.Hour
	}
	if e.domBudget <= 0 {
		e.domBudget = DefaultDOMBudget
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "healing_engine")
	return e
}

// Heal always returns a suggestion.
func (e *Engine) Heal(ctx context.Context, in Context) model.Suggestion {
	if e.primary != nil {
		if s, ok := e.tryPrimary(ctx, in); ok {
			return s
		}
	}

	s, err := e.fallback.Propose(ctx, in)
	if err != nil {
		e.logger.WarnContext(ctx, "fallback proposer failed", "proposer", e.fallback.Name(), "error", err)
		return Heuristic(in)
	}
	return s
}

// HasPrimary reports whether a generative backend is configured.
func (e *Engine) HasPrimary() bool {
	return e != nil && e.primary != nil
}

func (e *Engine) tryPrimary(ctx context.Context, in Context) (model.Suggestion, bool) {
	key := e.cacheKey(in)
	if e.cache != nil {
		cached, hit, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.DebugContext(ctx, "suggestion cache read failed", "error", err)
		} else if hit {
			return cached, true
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// The budget is applied here so every backend sees the same truncated evidence.
	bounded := in
	bounded.DOMSnapshot = TruncateDOM(in.DOMSnapshot, e.domBudget)

	s, err := e.primary.Propose(callCtx, bounded)
	if err != nil {
		if errors.Is(err, ErrMalformedResponse) {
			e.logger.WarnContext(ctx, "discarding malformed healing response",
				"proposer", e.primary.Name(), "error", err)
		} else {
			e.logger.WarnContext(ctx, "healing backend unavailable, using fallback",
				"proposer", e.primary.Name(), "error", err)
		}
		return model.Suggestion{}, false
	}
	if !s.HasSelector() {
		e.logger.WarnContext(ctx, "healing backend returned no selector", "proposer", e.primary.Name())
		return model.Suggestion{}, false
	}
	s.Confidence = clamp01(s.Confidence)
	if s.Source == "" {
		s.Source = model.SourceAI
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, s, e.cacheTTL); err != nil {
			e.logger.DebugContext(ctx, "suggestion cache write failed", "error", err)
		}
	}
	return s, true
}

func (e *Engine) cacheKey(in Context) string {
	h := sha256.New()
	for _, part := range []string{
		e.primary.Name(),
		in.FailedSelector,
		in.ErrorMessage,
		TruncateDOM(in.DOMSnapshot, e.domBudget),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
