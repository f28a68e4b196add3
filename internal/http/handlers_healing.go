package httpx

import (
	"context"
	"net/http"

	"github.com/target/healwright/internal/domain/model"
)

// Suggester produces one-off healing suggestions; service.SuggestService implements it.
type Suggester interface {
	Suggest(ctx context.Context, req model.SuggestRequest) (model.SuggestResponse, error)
}

// HealingHandlers serves POST /api/healing/suggest.
type HealingHandlers struct {
	Svc Suggester
}

// Suggest returns a replacement selector for the submitted failure.
func (h *HealingHandlers) Suggest(w http.ResponseWriter, r *http.Request) {
	var req model.SuggestRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Svc.Suggest(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}
