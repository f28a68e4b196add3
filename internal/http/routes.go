package httpx

import (
	"log/slog"
	"net/http"
)

// RouterServices holds the services the HTTP router dispatches to.
type RouterServices struct {
	Queue   TestRunQueue    // Required
	Status  RunStatusReader // Required
	Suggest Suggester       // Optional: /api/healing/suggest is not registered when nil
	Health  Pinger          // Optional: readiness check for /healthz
}

// NewRouter creates the API mux.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	runs := &TestRunHandlers{Queue: services.Queue, Status: services.Status}
	mux.HandleFunc("POST /api/test-runs", runs.Enqueue)
	mux.HandleFunc("GET /api/test-runs/{id}/status", runs.GetStatus)
	mux.HandleFunc("POST /api/test-runs/{id}/cancel", runs.Cancel)

	if services.Suggest != nil {
		healing := &HealingHandlers{Svc: services.Suggest}
		mux.HandleFunc("POST /api/healing/suggest", healing.Suggest)
	}

	health := healthHandler(services.Health)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	return mux
}

// HandlerOptions configures the middleware stack around the router.
type HandlerOptions struct {
	Logger             *slog.Logger
	Reporter           PanicReporter
	MaxBodyBytes       int64
	CompressionEnabled bool
	CompressionLevel   int
}

// Wrap applies the middleware stack. Order: Recover -> Logging -> Compression -> LimitBody -> h.
func Wrap(h http.Handler, opts HandlerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h = LimitBody(opts.MaxBodyBytes)(h)
	if opts.CompressionEnabled {
		h = Compression(CompressionConfig{Level: opts.CompressionLevel, Logger: logger})(h)
	}
	h = Logging(logger)(h)
	return Recover(logger, opts.Reporter)(h)
}
