// Package sentry reports terminal job failures and worker panics. Every function is a no-op
// until Init succeeds with a DSN.
package sentry

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// Options configures the SDK.
type Options struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

var (
	// Tokens travel in clone headers and error output; never ship them.
	tokenPattern  = regexp.MustCompile(`(gh[pousr]_|github_pat_)[A-Za-z0-9_]{10,}`)
	apiKeyPattern = regexp.MustCompile(`(?i)(sk-ant-api\d+-|sk-|api[_-]?key[=:]\s*)([A-Za-z0-9_-]{10,})`)
	bearerPattern = regexp.MustCompile(`(?i)(authorization:\s*(?:bearer|basic)\s+)\S+`)
	urlCredential = regexp.MustCompile(`(https?://)[^/@\s]+@`)
)

// Init initializes the SDK. The returned func flushes buffered events and should be deferred.
func Init(opts Options) (func(), error) {
	if opts.DSN == "" {
		return func() {}, nil
	}
	if opts.Environment == "" {
		opts.Environment = "production"
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		SampleRate:       opts.SampleRate,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			scrubEvent(event)
			return event
		},
		BeforeBreadcrumb: func(b *sentry.Breadcrumb, _ *sentry.BreadcrumbHint) *sentry.Breadcrumb {
			b.Message = scrubSecrets(b.Message)
			return b
		},
	})
	if err != nil {
		return func() {}, fmt.Errorf("sentry init: %w", err)
	}
	return func() { sentry.Flush(flushTimeout) }, nil
}

// Reporter captures errors with job tags. The zero value uses the global hub.
type Reporter struct{}

// CaptureError reports err tagged with tags. Safe to call when Sentry is not configured.
func (Reporter) CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, scrubSecrets(v))
		}
		hub.CaptureException(err)
	})
}

// RecoverPanic reports a recovered panic value and returns it as an error.
func (Reporter) RecoverPanic(ctx context.Context, recovered any) error {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.RecoverWithContext(ctx, recovered)
	return fmt.Errorf("panic: %v", recovered)
}

func scrubSecrets(s string) string {
	s = tokenPattern.ReplaceAllString(s, "${1}[REDACTED]")
	s = apiKeyPattern.ReplaceAllString(s, "${1}[REDACTED]")
	s = bearerPattern.ReplaceAllString(s, "${1}[REDACTED]")
	return urlCredential.ReplaceAllString(s, "${1}[REDACTED]@")
}

func scrubEvent(event *sentry.Event) {
	event.Message = scrubSecrets(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = scrubSecrets(event.Exception[i].Value)
	}
	for k, v := range event.Tags {
		event.Tags[k] = scrubSecrets(v)
	}
}
