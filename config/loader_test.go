package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstate/agentstate/persistence"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Persistence.DatabaseURL)
	assert.Equal(t, 5*time.Second, cfg.Persistence.FlushInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentstate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
persistence:
  database_url: postgres://localhost:5432/agentstate
  max_open_conns: 32
log:
  level: debug
  format: console
telemetry:
  enabled: true
  service_name: agentstate-test
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/agentstate", cfg.Persistence.DatabaseURL)
	assert.Equal(t, 32, cfg.Persistence.MaxOpenConns)
	// Unset file keys keep defaults.
	assert.Equal(t, 4, cfg.Persistence.MaxIdleConns)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "agentstate-test", cfg.Telemetry.ServiceName)
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/does/not/exist.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentstate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644))

	t.Setenv("AGENTSTATE_LOG_LEVEL", "error")
	t.Setenv("AGENTSTATE_PERSISTENCE_DATABASE_URL", "postgres://env-host/db")
	t.Setenv("AGENTSTATE_PERSISTENCE_FLUSH_INTERVAL", "30s")
	t.Setenv("AGENTSTATE_TELEMETRY_ENABLED", "true")
	t.Setenv("AGENTSTATE_LOG_OUTPUT_PATHS", "stdout, stderr")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "postgres://env-host/db", cfg.Persistence.DatabaseURL)
	assert.Equal(t, 30*time.Second, cfg.Persistence.FlushInterval)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, []string{"stdout", "stderr"}, cfg.Log.OutputPaths)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"BadLogLevel", func(c *Config) { c.Log.Level = "loud" }},
		{"BadLogFormat", func(c *Config) { c.Log.Format = "xml" }},
		{"NegativeFlushInterval", func(c *Config) { c.Persistence.FlushInterval = -time.Second }},
		{"SampleRateOutOfRange", func(c *Config) { c.Telemetry.SampleRate = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidatorHookRuns(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return assert.AnError }).
		Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestBackendConversion(t *testing.T) {
	p := PersistenceConfig{
		DatabaseURL:     "postgres://h/db",
		SnapshotPath:    "/tmp/state.json",
		FlushInterval:   time.Minute,
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
	backend := p.Backend()
	assert.Equal(t, persistence.BackendPostgres, backend.Kind())
	assert.Equal(t, "/tmp/state.json", backend.SnapshotPath)
	assert.Equal(t, time.Minute, backend.FlushInterval)
	assert.Equal(t, 8, backend.MaxOpenConns)

	p.DatabaseURL = ""
	assert.Equal(t, persistence.BackendMemory, p.Backend().Kind())
}
