package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/healwright/config"
	"github.com/target/healwright/internal/adapters/aiprovider"
	"github.com/target/healwright/internal/adapters/github"
	redisadapter "github.com/target/healwright/internal/adapters/redis"
	"github.com/target/healwright/internal/adapters/testexec"
	"github.com/target/healwright/internal/core"
	"github.com/target/healwright/internal/data"
	"github.com/target/healwright/internal/domain/healing"
	domainjob "github.com/target/healwright/internal/domain/job"
	"github.com/target/healwright/internal/observability/sentry"
	"github.com/target/healwright/internal/observability/statsd"
	"github.com/target/healwright/internal/service"
)

// ServiceContainer holds the wired services shared by the HTTP server, the worker and the reaper.
type ServiceContainer struct {
	Queue         *service.QueueService
	Status        *service.StatusService
	Suggest       *service.SuggestService
	Orchestrator  *service.Orchestrator
	Engine        *healing.Engine
	Runner        *testexec.Runner
	Repos         Repositories
	Observability ObservabilityContainer
}

// Repositories groups the Postgres-backed stores.
type Repositories struct {
	Jobs     *data.JobRepo
	Runs     *data.TestRunRepo
	Findings *data.FindingRepo
	Projects *data.ProjectRepo
}

// ObservabilityContainer holds the metrics sink and error reporter.
type ObservabilityContainer struct {
	Metrics  statsd.Sink
	Reporter *sentry.Reporter // nil when Sentry is disabled
	// Flush drains buffered error reports; always non-nil.
	Flush func()
}

// ServiceDeps contains the infrastructure NewServices wires together.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional: suggestion cache and publish lock
	Logger      *slog.Logger
}

// RetryPolicy returns the queue retry policy for cfg. The repository and the queue service share it.
func RetryPolicy(cfg config.WorkerConfig) domainjob.RetryPolicy {
	return domainjob.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}.Normalize()
}

// BuildObservability connects StatsD and Sentry as configured. Failures degrade to no-ops.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	out := ObservabilityContainer{Metrics: statsd.Discard, Flush: func() {}}

	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.Metrics = client
		}
	}

	if cfg.Sentry.IsEnabled() {
		flush, err := sentry.Init(sentry.Options{
			DSN:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     cfg.Sentry.Release,
			SampleRate:  cfg.Sentry.SampleRate,
		})
		if err != nil {
			logger.Error("failed to initialise sentry", "error", err)
		} else {
			out.Reporter = &sentry.Reporter{}
			out.Flush = flush
		}
	}
	return out
}

// BuildRepositories builds the Postgres repositories.
func BuildRepositories(db *sql.DB, cfg *config.AppConfig, logger *slog.Logger) Repositories {
	return Repositories{
		Jobs:     data.NewJobRepo(db, data.RepoConfig{Retry: RetryPolicy(cfg.Worker), Logger: logger}),
		Runs:     data.NewTestRunRepo(db, nil),
		Findings: data.NewFindingRepo(db, nil),
		Projects: data.NewProjectRepo(db, CreateTokenCipher(cfg.GitHub.TokenEncryptionKey, logger)),
	}
}

// BuildHealingEngine wires the configured AI provider, the Redis suggestion cache and the
// heuristic fallback.
func BuildHealingEngine(
	ctx context.Context,
	cfg config.HealingConfig,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
) (*healing.Engine, error) {
	primary, err := aiprovider.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("healing provider: %w", err)
	}
	opts := healing.EngineOptions{
		Primary:   primary,
		CacheTTL:  cfg.CacheTTL,
		Timeout:   cfg.Timeout,
		DOMBudget: cfg.DOMBudget,
		Logger:    logger,
	}
	if redisClient != nil {
		opts.Cache = redisadapter.NewSuggestionCache(redisClient)
	}
	if primary == nil {
		logger.Info("no healing provider configured; using heuristics only")
	} else {
		logger.Info("healing provider configured", "provider", primary.Name())
	}
	return healing.NewEngine(opts), nil
}

// NewServices wires every service. Worker-only pieces are built regardless so the admin CLI can
// reuse the container.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("config and database are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := BuildObservability(logger, cfg.Observability)
	repos := BuildRepositories(deps.DB, cfg, logger)

	queue, err := service.NewQueueService(service.QueueServiceOptions{
		Jobs:    repos.Jobs,
		Runs:    repos.Runs,
		Retry:   RetryPolicy(cfg.Worker),
		Lease:   cfg.Worker.JobLease,
		Metrics: obs.Metrics,
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("queue service: %w", err)
	}

	engine, err := BuildHealingEngine(ctx, cfg.Healing, deps.RedisClient, logger)
	if err != nil {
		queue.Close()
		return ServiceContainer{}, err
	}

	var locker core.PublishLocker
	if deps.RedisClient != nil {
		locker = redisadapter.NewPublishLock(deps.RedisClient, logger)
	}
	scm := github.NewClient(github.Options{
		BaseURL: cfg.GitHub.BaseURL,
		Timeout: cfg.GitHub.Timeout,
		Logger:  logger,
	})
	publisher, err := service.NewPublisher(service.PublisherOptions{
		Projects:      repos.Projects,
		Findings:      repos.Findings,
		SourceControl: scm,
		Locker:        locker,
		LockTTL:       cfg.GitHub.PublishLockTTL,
		Metrics:       obs.Metrics,
		Logger:        logger,
	})
	if err != nil {
		queue.Close()
		return ServiceContainer{}, fmt.Errorf("publisher: %w", err)
	}

	runner := testexec.NewRunner(testexec.Options{
		BaseDir:        cfg.Worker.WorkspaceDir,
		InstallTimeout: cfg.Worker.InstallTimeout,
		TestTimeout:    cfg.Worker.TestTimeout,
		Logger:         logger,
	})

	orchestrator, err := service.NewOrchestrator(service.OrchestratorOptions{
		Jobs:               repos.Jobs,
		Runs:               repos.Runs,
		Findings:           repos.Findings,
		Projects:           repos.Projects,
		Runner:             runner,
		Healer:             engine,
		Publisher:          publisher,
		FailureConcurrency: cfg.Worker.FailureConcurrency,
		Metrics:            obs.Metrics,
		Logger:             logger,
	})
	if err != nil {
		queue.Close()
		return ServiceContainer{}, fmt.Errorf("orchestrator: %w", err)
	}

	return ServiceContainer{
		Queue:         queue,
		Status:        service.NewStatusService(repos.Jobs, repos.Runs),
		Suggest:       service.NewSuggestService(engine, obs.Metrics, logger),
		Orchestrator:  orchestrator,
		Engine:        engine,
		Runner:        runner,
		Repos:         repos,
		Observability: obs,
	}, nil
}
