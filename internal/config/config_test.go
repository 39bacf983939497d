package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault_IsValidForMemoryStore(t *testing.T) {
	cfg := Default()
	cfg.Store = StoreMemory
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Distribution.MaxAgentsPerJob)
	assert.Equal(t, 2, cfg.Agent.MaxRetries)
	assert.Equal(t, time.Second, cfg.Agent.RetryBaseDelay)
	assert.Equal(t, 2.0, cfg.Agent.RetryMultiplier)
	assert.Equal(t, 30*time.Second, cfg.Agent.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Agent.HealthTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Distribution.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, "first_completed", cfg.Distribution.Strategy)
}

func TestDefault_PostgresNeedsURL(t *testing.T) {
	err := Default().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store: memory
distribution:
  max_agents_per_job: 5
  quorum: 2
  strategy: best_scored
  timeout: 2m
agent:
  request_timeout: 10s
`), 0o600))

	t.Setenv("DISPATCH_QUORUM", "3")
	t.Setenv("DISPATCH_SWEEP_INTERVAL", "45")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 5, cfg.Distribution.MaxAgentsPerJob)
	assert.Equal(t, 3, cfg.Distribution.Quorum)
	assert.Equal(t, "best_scored", cfg.Distribution.Strategy)
	assert.Equal(t, 2*time.Minute, cfg.Distribution.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Agent.RequestTimeout)
	assert.Equal(t, 45*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, 5*time.Second, cfg.Agent.HealthTimeout, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(env(map[string]string{
		"PORT":                          "9090",
		"DATABASE_URL":                  "postgres://localhost/dispatch",
		"DISPATCH_DISTRIBUTION_TIMEOUT": "90s",
		"DISPATCH_TRACING_EXPORTER":     "stdout",
	}))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/dispatch", cfg.Database.URL)
	assert.Equal(t, 90*time.Second, cfg.Distribution.Timeout)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)

	err = cfg.applyEnv(env(map[string]string{
		"DISPATCH_QUORUM":         "many",
		"DISPATCH_SWEEP_INTERVAL": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISPATCH_QUORUM")
	assert.Contains(t, err.Error(), "DISPATCH_SWEEP_INTERVAL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantMsg string
	}{
		{name: "unknown store", mutate: func(c *Config) { c.Store = "redis" }, wantMsg: "unknown store"},
		{name: "unknown strategy", mutate: func(c *Config) { c.Distribution.Strategy = "random" }, wantMsg: "strategy"},
		{name: "quorum above fan-out", mutate: func(c *Config) { c.Distribution.Quorum = 4 }, wantMsg: "quorum"},
		{name: "zero fan-out", mutate: func(c *Config) { c.Distribution.MaxAgentsPerJob = 0 }, wantMsg: "max_agents_per_job"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantMsg: "log level"},
		{name: "shrinking backoff", mutate: func(c *Config) { c.Agent.RetryMultiplier = 0.5 }, wantMsg: "retry_multiplier"},
		{name: "zero batch", mutate: func(c *Config) { c.Intake.BatchSize = 0 }, wantMsg: "batch_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Store = StoreMemory
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	l, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
}
