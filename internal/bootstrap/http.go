package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/target/healwright/config"
	httpx "github.com/target/healwright/internal/http"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config   config.HTTPConfig
	Services ServiceContainer
	Health   httpx.Pinger
	Logger   *slog.Logger
}

// BuildHTTPHandler assembles the router and its middleware.
func BuildHTTPHandler(cfg *HTTPServerConfig) http.Handler {
	router := httpx.NewRouter(httpx.RouterServices{
		Queue:   cfg.Services.Queue,
		Status:  cfg.Services.Status,
		Suggest: cfg.Services.Suggest,
		Health:  cfg.Health,
	})

	opts := httpx.HandlerOptions{
		Logger:             cfg.Logger,
		MaxBodyBytes:       cfg.Config.MaxBodyBytes,
		CompressionEnabled: cfg.Config.CompressionEnabled,
		CompressionLevel:   cfg.Config.CompressionLevel,
	}
	// A typed nil would defeat the middleware's nil check.
	if r := cfg.Services.Observability.Reporter; r != nil {
		opts.Reporter = r
	}
	if opts.CompressionEnabled {
		cfg.Logger.Info("HTTP compression enabled", "level", opts.CompressionLevel)
	}
	return httpx.Wrap(router, opts)
}

// ServeHTTP listens on cfg.Config.Addr and blocks until ctx is cancelled, then shuts the server
// down within the configured timeout.
func ServeHTTP(ctx context.Context, cfg *HTTPServerConfig) error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	addr := cfg.Config.Addr
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           BuildHTTPHandler(cfg),
		ReadTimeout:       cfg.Config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Config.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		cfg.Logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	cfg.Logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	cfg.Logger.Info("HTTP server stopped")
	return nil
}
