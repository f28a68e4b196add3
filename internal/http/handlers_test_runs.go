package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/target/healwright/internal/domain/model"
	apperrors "github.com/target/healwright/internal/errors"
	"github.com/target/healwright/internal/service"
)

// TestRunQueue is the slice of service.QueueService the handlers use.
type TestRunQueue interface {
	Enqueue(ctx context.Context, req model.EnqueueRequest) (service.EnqueueResult, error)
	Cancel(ctx context.Context, testRunID string) (bool, error)
}

// RunStatusReader answers status queries; service.StatusService implements it.
type RunStatusReader interface {
	GetStatus(ctx context.Context, testRunID string) (model.RunStatus, error)
}

// TestRunHandlers serves the test-run intake and status endpoints.
type TestRunHandlers struct {
	Queue  TestRunQueue
	Status RunStatusReader
}

// Enqueue accepts a test run. 202 on success (including duplicates), 503 when the queue is down.
func (h *TestRunHandlers) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req model.EnqueueRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.Queue.Enqueue(r.Context(), req)
	switch {
	case errors.Is(err, service.ErrQueueUnavailable):
		WriteJSON(w, http.StatusServiceUnavailable, service.EnqueueResult{Queued: false})
	case err != nil:
		writeAppError(w, err)
	default:
		WriteJSON(w, http.StatusAccepted, res)
	}
}

// GetStatus reports queue and run state. Unknown runs are a 404 with {"found":false}.
func (h *TestRunHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	st, err := h.Status.GetStatus(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !st.Found {
		WriteJSON(w, http.StatusNotFound, notFoundBody{Found: false, TestRunID: id})
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

type notFoundBody struct {
	Found     bool   `json:"found"`
	TestRunID string `json:"testRunId"`
}

type cancelResponse struct {
	TestRunID string `json:"testRunId"`
	Cancelled bool   `json:"cancelled"`
}

// Cancel withdraws a pending run. Runs that already started report cancelled=false with 409.
func (h *TestRunHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	cancelled, err := h.Queue.Cancel(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	status := http.StatusOK
	if !cancelled {
		status = http.StatusConflict
	}
	WriteJSON(w, status, cancelResponse{TestRunID: id, Cancelled: cancelled})
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeAppError(w, apperrors.ValidationField("id", "test run id is required"))
		return "", false
	}
	return id, true
}
