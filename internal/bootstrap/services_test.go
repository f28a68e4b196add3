package bootstrap

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/healwright/config"
	"github.com/target/healwright/internal/data/cryptoutil"
	"github.com/target/healwright/internal/testutil"
)

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy(config.WorkerConfig{MaxAttempts: 5, RetryBaseDelay: time.Second, RetryMaxDelay: time.Minute})
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, time.Minute, p.MaxDelay)

	d := RetryPolicy(config.WorkerConfig{})
	require.NoError(t, d.Validate())
}

func TestGetEnabledServices(t *testing.T) {
	assert.Equal(t, []string{"http", "reaper"}, GetEnabledServices(&config.AppConfig{Services: "reaper, http"}))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "scheduler"}))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestValidateServiceConfig(t *testing.T) {
	require.NoError(t, ValidateServiceConfig(&config.AppConfig{Services: "http,worker", Worker: config.WorkerConfig{WorkspaceDir: t.TempDir()}}))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: ""}))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: "rules-engine"}))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: "worker"}))
	require.Error(t, ValidateServiceConfig(nil))
}

func TestCreateTokenCipher(t *testing.T) {
	assert.IsType(t, cryptoutil.Plaintext{}, CreateTokenCipher("", nil))

	hexKey := strings.Repeat("ab", 32)
	c := CreateTokenCipher(hexKey, slog.Default())
	sealed, err := c.Seal("tok")
	require.NoError(t, err)
	assert.True(t, cryptoutil.IsSealed(sealed))

	// A different key cannot open it.
	other := CreateTokenCipher("correct horse battery staple", nil)
	_, err = other.Open(sealed)
	require.Error(t, err)

	got, err := CreateTokenCipher(hexKey, nil).Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestBuildHealingEngine_HeuristicsOnly(t *testing.T) {
	engine, err := BuildHealingEngine(context.Background(), config.HealingConfig{Provider: config.HealingProviderNone}, nil, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, engine)

	_, err = BuildHealingEngine(context.Background(), config.HealingConfig{Provider: "openai"}, nil, slog.Default())
	require.Error(t, err)
}

func TestNewServices(t *testing.T) {
	_, err := NewServices(context.Background(), nil)
	require.Error(t, err)

	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupTestDB(t)

	cfg := &config.AppConfig{Services: "http,worker,reaper"}
	cfg.Sanitize()
	services, err := NewServices(context.Background(), &ServiceDeps{Config: cfg, DB: db, Logger: slog.Default()})
	require.NoError(t, err)
	t.Cleanup(services.Queue.Close)

	assert.NotNil(t, services.Orchestrator)
	assert.NotNil(t, services.Suggest)
	assert.Nil(t, services.Observability.Reporter)

	reaperRunner, err := NewReaperRunner(cfg.Reaper, services, slog.Default())
	require.NoError(t, err)
	_, err = reaperRunner.RunOnce(context.Background())
	require.NoError(t, err)
}
