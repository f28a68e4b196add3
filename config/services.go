package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the test-run worker pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, worker, reaper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains test-run worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of jobs processed at once.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// JobLease is how long a claim stays valid without a heartbeat.
	JobLease time.Duration `env:"WORKER_JOB_LEASE" envDefault:"2m"`

	// JobTimeout bounds one job end to end: clone, install, tests, healing and publishing.
	JobTimeout time.Duration `env:"WORKER_JOB_TIMEOUT" envDefault:"30m"`

	// FailureConcurrency bounds how many failures of one run are healed in parallel.
	FailureConcurrency int `env:"WORKER_FAILURE_CONCURRENCY" envDefault:"4"`

	// WorkspaceDir is where repositories are cloned. Defaults to the OS temp dir.
	WorkspaceDir string `env:"WORKER_WORKSPACE_DIR"`

	// MaxAttempts is the number of deliveries before a job fails permanently.
	MaxAttempts int `env:"WORKER_MAX_ATTEMPTS" envDefault:"3"`

	RetryBaseDelay time.Duration `env:"WORKER_RETRY_BASE_DELAY" envDefault:"30s"`
	RetryMaxDelay  time.Duration `env:"WORKER_RETRY_MAX_DELAY"  envDefault:"10m"`

	// InstallTimeout and TestTimeout bound the subprocesses inside a job.
	InstallTimeout time.Duration `env:"WORKER_INSTALL_TIMEOUT" envDefault:"10m"`
	TestTimeout    time.Duration `env:"WORKER_TEST_TIMEOUT"    envDefault:"15m"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.JobLease < 5*time.Second {
		w.JobLease = 5 * time.Second
	}
	if w.JobTimeout < time.Minute {
		w.JobTimeout = time.Minute
	}
	if w.FailureConcurrency < 1 {
		w.FailureConcurrency = 1
	}
	if w.MaxAttempts < 1 {
		w.MaxAttempts = 1
	}
	if w.RetryBaseDelay < time.Second {
		w.RetryBaseDelay = time.Second
	}
	if w.RetryMaxDelay < w.RetryBaseDelay {
		w.RetryMaxDelay = w.RetryBaseDelay
	}
	if w.InstallTimeout <= 0 || w.InstallTimeout > w.JobTimeout {
		w.InstallTimeout = w.JobTimeout
	}
	if w.TestTimeout <= 0 || w.TestTimeout > w.JobTimeout {
		w.TestTimeout = w.JobTimeout
	}
	w.WorkspaceDir = strings.TrimSpace(w.WorkspaceDir)
	if w.WorkspaceDir == "" {
		w.WorkspaceDir = filepath.Join(os.TempDir(), "healwright")
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is the maximum age for pending jobs before they are marked as failed.
	// Jobs stuck in pending status longer than this will be failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"1h"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// CompletedKeep is how many of the most recent completed jobs survive regardless of age.
	// Zero disables count-based pruning.
	CompletedKeep int `env:"REAPER_COMPLETED_KEEP" envDefault:"1000"`

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"720h"` // 30 days

	// CancelledMaxAge is the maximum age for cancelled jobs before deletion.
	CancelledMaxAge time.Duration `env:"REAPER_CANCELLED_MAX_AGE" envDefault:"168h"` // 7 days

	// WorkspaceMaxAge is the age after which unlocked workspaces are treated as orphans.
	WorkspaceMaxAge time.Duration `env:"REAPER_WORKSPACE_MAX_AGE" envDefault:"6h"`

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.CancelledMaxAge < 1*time.Hour {
		r.CancelledMaxAge = 1 * time.Hour
	}
	if r.WorkspaceMaxAge < 30*time.Minute {
		r.WorkspaceMaxAge = 30 * time.Minute
	}
	if r.CompletedKeep < 0 {
		r.CompletedKeep = 0
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
