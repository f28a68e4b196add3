package config

import (
	"strings"
)

const defaultObservabilityName = "healwright"

// ObservabilityConfig groups configuration that controls metrics and error reporting.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig
	Sentry  SentryConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Sentry.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"healwright"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	if c.Prefix = strings.TrimSpace(c.Prefix); c.Prefix == "" {
		c.Prefix = defaultObservabilityName
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// SentryConfig controls error reporting. Reporting is off unless a DSN is set.
type SentryConfig struct {
	DSN         string  `env:"SENTRY_DSN"`
	Environment string  `env:"SENTRY_ENVIRONMENT"   envDefault:"production"`
	Release     string  `env:"SENTRY_RELEASE"`
	SampleRate  float64 `env:"SENTRY_SAMPLE_RATE"   envDefault:"1.0"`
}

// Sanitize trims the DSN and clamps the sample rate to [0,1].
func (c *SentryConfig) Sanitize() {
	c.DSN = strings.TrimSpace(c.DSN)
	c.Environment = strings.TrimSpace(c.Environment)
	if c.SampleRate < 0 {
		c.SampleRate = 0
	}
	if c.SampleRate > 1 {
		c.SampleRate = 1
	}
}

// IsEnabled reports whether a DSN is configured.
func (c *SentryConfig) IsEnabled() bool {
	return c.DSN != ""
}
