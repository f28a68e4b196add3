package config

import (
	"path/filepath"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "single service - worker",
			input:    "worker",
			expected: map[ServiceMode]bool{ServiceModeWorker: true},
		},
		{
			name:  "all services with whitespace",
			input: " http , worker,reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:     "empty entries are skipped",
			input:    "http,,",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,",
			expectError: true,
		},
		{
			name:        "invalid service",
			input:       "http,scheduler",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d services, got %d", len(tt.expected), len(result))
			}
			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name           string
		services       string
		expectedHTTP   bool
		expectedWorker bool
		expectedReaper bool
	}{
		{name: "http only", services: "http", expectedHTTP: true},
		{name: "worker and reaper", services: "worker,reaper", expectedWorker: true, expectedReaper: true},
		{name: "all", services: "http,worker,reaper", expectedHTTP: true, expectedWorker: true, expectedReaper: true},
		{name: "invalid disables everything", services: "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsHTTPServerEnabled() != tt.expectedHTTP {
				t.Errorf("IsHTTPServerEnabled(): expected %v", tt.expectedHTTP)
			}
			if cfg.IsWorkerEnabled() != tt.expectedWorker {
				t.Errorf("IsWorkerEnabled(): expected %v", tt.expectedWorker)
			}
			if cfg.IsReaperEnabled() != tt.expectedReaper {
				t.Errorf("IsReaperEnabled(): expected %v", tt.expectedReaper)
			}
		})
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("SERVICES", "worker")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_URI", "redis:6379")
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("WORKER_JOB_TIMEOUT", "45m")
	t.Setenv("REAPER_COMPLETED_KEEP", "50")
	t.Setenv("HEALING_ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("HEALING_DOM_BUDGET", "6000")
	t.Setenv("GITHUB_BASE_URL", "https://ghe.example.com/api/v3")
	t.Setenv("SENTRY_DSN", "https://key@sentry.example.com/1")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if !cfg.IsWorkerEnabled() || cfg.IsHTTPServerEnabled() {
		t.Errorf("unexpected services: %q", cfg.Services)
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Name != "healwright" {
		t.Errorf("unexpected postgres config: %+v", cfg.Postgres)
	}
	if !cfg.Redis.Enabled() {
		t.Errorf("expected redis to be enabled")
	}
	if cfg.Worker.Concurrency != 4 || cfg.Worker.JobTimeout != 45*time.Minute {
		t.Errorf("unexpected worker config: %+v", cfg.Worker)
	}
	if cfg.Worker.MaxAttempts != 3 || cfg.Worker.RetryBaseDelay != 30*time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg.Worker)
	}
	if cfg.Reaper.CompletedKeep != 50 {
		t.Errorf("expected completed keep 50, got %d", cfg.Reaper.CompletedKeep)
	}
	if cfg.Healing.Provider != HealingProviderAnthropic {
		t.Errorf("expected anthropic provider, got %q", cfg.Healing.Provider)
	}
	if cfg.Healing.DOMBudget != 6000 {
		t.Errorf("expected DOM budget 6000, got %d", cfg.Healing.DOMBudget)
	}
	if cfg.GitHub.BaseURL != "https://ghe.example.com/api/v3/" {
		t.Errorf("expected trailing slash on base url, got %q", cfg.GitHub.BaseURL)
	}
	if !cfg.Observability.Sentry.IsEnabled() {
		t.Errorf("expected sentry to be enabled")
	}
}

func TestWorkerConfig_Sanitize(t *testing.T) {
	cfg := WorkerConfig{
		Concurrency:    0,
		JobLease:       time.Second,
		JobTimeout:     10 * time.Minute,
		RetryBaseDelay: time.Minute,
		RetryMaxDelay:  time.Second,
		TestTimeout:    time.Hour,
	}
	cfg.Sanitize()

	if cfg.Concurrency != 1 {
		t.Errorf("expected concurrency 1, got %d", cfg.Concurrency)
	}
	if cfg.JobLease != 5*time.Second {
		t.Errorf("expected lease floor, got %v", cfg.JobLease)
	}
	if cfg.FailureConcurrency != 1 || cfg.MaxAttempts != 1 {
		t.Errorf("expected floors, got %+v", cfg)
	}
	if cfg.RetryMaxDelay != time.Minute {
		t.Errorf("expected max delay raised to base, got %v", cfg.RetryMaxDelay)
	}
	if cfg.TestTimeout != 10*time.Minute || cfg.InstallTimeout != 10*time.Minute {
		t.Errorf("expected subprocess timeouts capped at job timeout, got %v/%v", cfg.TestTimeout, cfg.InstallTimeout)
	}
	if filepath.Base(cfg.WorkspaceDir) != "healwright" {
		t.Errorf("expected default workspace dir, got %q", cfg.WorkspaceDir)
	}
}

func TestReaperConfig_Sanitize(t *testing.T) {
	cfg := ReaperConfig{CompletedKeep: -1, BatchSize: 50000}
	cfg.Sanitize()

	if cfg.Interval != time.Minute || cfg.PendingMaxAge != 5*time.Minute {
		t.Errorf("expected interval floors, got %+v", cfg)
	}
	if cfg.WorkspaceMaxAge != 30*time.Minute {
		t.Errorf("expected workspace age floor, got %v", cfg.WorkspaceMaxAge)
	}
	if cfg.CancelledMaxAge != time.Hour {
		t.Errorf("expected cancelled age floor, got %v", cfg.CancelledMaxAge)
	}
	if cfg.CompletedKeep != 0 {
		t.Errorf("expected keep clamped to 0, got %d", cfg.CompletedKeep)
	}
	if cfg.BatchSize != 10000 {
		t.Errorf("expected batch size ceiling, got %d", cfg.BatchSize)
	}
}

func TestHealingConfig_SanitizeProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      HealingConfig
		expected HealingProvider
	}{
		{name: "nothing configured", cfg: HealingConfig{}, expected: HealingProviderNone},
		{name: "inferred anthropic", cfg: HealingConfig{AnthropicAPIKey: "a"}, expected: HealingProviderAnthropic},
		{name: "inferred gemini", cfg: HealingConfig{GeminiAPIKey: "g"}, expected: HealingProviderGemini},
		{
			name:     "explicit gemini wins over anthropic key",
			cfg:      HealingConfig{Provider: " Gemini ", AnthropicAPIKey: "a", GeminiAPIKey: "g"},
			expected: HealingProviderGemini,
		},
		{name: "explicit without key", cfg: HealingConfig{Provider: "anthropic"}, expected: HealingProviderNone},
		{name: "explicit none", cfg: HealingConfig{Provider: "none", AnthropicAPIKey: "a"}, expected: HealingProviderNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Sanitize()
			if cfg.Provider != tt.expected {
				t.Errorf("expected provider %q, got %q", tt.expected, cfg.Provider)
			}
			if cfg.DOMBudget < 500 || cfg.Timeout <= 0 || cfg.CacheTTL <= 0 {
				t.Errorf("expected guardrails applied, got %+v", cfg)
			}
		})
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
	if cfg.Prefix != "healwright" {
		t.Fatalf("expected default prefix, got %q", cfg.Prefix)
	}
}

func TestSentryConfig_Sanitize(t *testing.T) {
	cfg := SentryConfig{DSN: "  ", SampleRate: 3}
	cfg.Sanitize()

	if cfg.IsEnabled() {
		t.Fatal("expected sentry disabled without a DSN")
	}
	if cfg.SampleRate != 1 {
		t.Fatalf("expected sample rate clamped to 1, got %v", cfg.SampleRate)
	}
}
