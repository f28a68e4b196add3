package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/target/healwright/internal/domain/healing"
	"github.com/target/healwright/internal/domain/model"
	apperrors "github.com/target/healwright/internal/errors"
	"github.com/target/healwright/internal/observability/metrics"
	"github.com/target/healwright/internal/observability/statsd"
)

// Healer proposes replacement selectors. *healing.Engine is the production implementation.
type Healer interface {
	Heal(ctx context.Context, in healing.Context) model.Suggestion
}

// SuggestService answers one-off healing requests without running any tests.
type SuggestService struct {
	healer  Healer
	metrics statsd.Sink
	logger  *slog.Logger
}

// NewSuggestService constructs a SuggestService. sink and logger may be nil.
func NewSuggestService(healer Healer, sink statsd.Sink, logger *slog.Logger) *SuggestService {
	if sink == nil {
		sink = statsd.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SuggestService{healer: healer, metrics: sink, logger: logger.With("component", "suggest_service")}
}

// Suggest heals a single selector. When the request omits the selector it is extracted from the
// error message. NeedsReview is true unless the suggestion clears the auto-heal threshold.
func (s *SuggestService) Suggest(ctx context.Context, req model.SuggestRequest) (model.SuggestResponse, error) {
	if err := req.Validate(); err != nil {
		return model.SuggestResponse{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid suggestion request")
	}

	selector := strings.TrimSpace(req.Selector)
	if selector == "" {
		selector, _ = healing.ExtractSelector(req.ErrorMessage)
	}

	suggestion := s.healer.Heal(ctx, healing.Context{
		FailedSelector: selector,
		ErrorMessage:   req.ErrorMessage,
		DOMSnapshot:    req.DOMSnapshot,
	})
	decision := healing.DecideSuggestion(suggestion)
	metrics.EmitHealingDecision(s.metrics, string(decision), string(suggestion.Source))
	s.logger.DebugContext(ctx, "suggestion produced",
		"selector", selector, "source", suggestion.Source, "confidence", suggestion.Confidence, "decision", decision)

	return model.SuggestResponse{
		FixedSelector: suggestion.NewSelector,
		Confidence:    suggestion.Confidence,
		SelectorType:  suggestion.SelectorType,
		Explanation:   suggestion.Reasoning,
		NeedsReview:   decision != model.DecisionHealedAuto,
	}, nil
}
