package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/healwright/config"
	"github.com/target/healwright/internal/adapters/jobrunner"
	"github.com/target/healwright/internal/adapters/reaper"
	"golang.org/x/sync/errgroup"
)

// shutdownWaitTimeout is how long background services get to stop after cancellation.
const shutdownWaitTimeout = 15 * time.Second

// ServiceOrchestrationConfig holds what RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// backgroundService describes a startable component bound to a service mode.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func buildBackgroundServices(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []backgroundService {
	return []backgroundService{
		{
			mode: config.ServiceModeHTTP,
			name: "http server",
			start: func(ctx context.Context) error {
				return ServeHTTP(ctx, &HTTPServerConfig{
					Config:   cfg.Config.HTTP,
					Services: cfg.Services,
					Health:   cfg.DB,
					Logger:   logger,
				})
			},
		},
		{
			mode: config.ServiceModeWorker,
			name: "worker",
			start: func(ctx context.Context) error {
				return RunWorker(ctx, cfg.Config.Worker, cfg.Services, logger)
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			start: func(ctx context.Context) error {
				return RunReaper(ctx, cfg.Config.Reaper, cfg.Services, logger)
			},
		},
	}
}

// RunWorker runs the job runner until ctx is cancelled.
func RunWorker(ctx context.Context, cfg config.WorkerConfig, services ServiceContainer, logger *slog.Logger) error {
	opts := jobrunner.RunnerOptions{
		Queue:        services.Queue,
		Processor:    services.Orchestrator,
		Logger:       logger,
		Concurrency:  cfg.Concurrency,
		Lease:        cfg.JobLease,
		JobTimeout:   cfg.JobTimeout,
		WorkerPrefix: "worker",
	}
	if r := services.Observability.Reporter; r != nil {
		opts.Reporter = r
	}
	runner, err := jobrunner.NewRunner(opts)
	if err != nil {
		return fmt.Errorf("create job runner: %w", err)
	}
	return runner.Run(ctx)
}

// NewReaperRunner wires the reaper over the job repository and the workspace cleaner.
func NewReaperRunner(cfg config.ReaperConfig, services ServiceContainer, logger *slog.Logger) (*reaper.Runner, error) {
	return reaper.NewRunner(reaper.RunnerOptions{
		Config:     cfg,
		Logger:     logger,
		Repo:       services.Repos.Jobs,
		Workspaces: services.Runner.Cleaner(),
		Metrics:    services.Observability.Metrics,
	})
}

// RunReaper runs the reaper loop until ctx is cancelled.
func RunReaper(ctx context.Context, cfg config.ReaperConfig, services ServiceContainer, logger *slog.Logger) error {
	runner, err := NewReaperRunner(cfg, services, logger)
	if err != nil {
		return fmt.Errorf("create reaper: %w", err)
	}
	return runner.Run(ctx)
}

// RunServicesWithShutdown starts every enabled service and blocks until SIGINT/SIGTERM or the
// first service failure, then stops the rest.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	for _, svc := range buildBackgroundServices(cfg, logger) {
		if !enabled[svc.mode] {
			continue
		}
		g.Go(func() error {
			logger.InfoContext(gctx, "background service started", "service", svc.name, "mode", svc.mode)
			err := svc.start(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.InfoContext(gctx, svc.name+" stopped")
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
		logger.Info("shutting down services...")
	}

	select {
	case err := <-done:
		if err != nil {
			logger.Error("service error", "error", err)
		}
		return err
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for services to stop")
		return nil
	}
}
