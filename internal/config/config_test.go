package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "droidscript", cfg.Logger.ServiceName)
	assert.Equal(t, 10000, cfg.Executor.MaxIterations)
	assert.Equal(t, BackendADB, cfg.Device.Backend)
	assert.Equal(t, 10*time.Second, cfg.Device.CallTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ADB.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.Agent.HeartbeatInterval)
	assert.Equal(t, ":8000", cfg.Server.Addr)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "droidscript.yaml")
	content := `
logger:
  level: debug
  format: json
executor:
  max_iterations: 50
device:
  backend: remote
  agent: bench-01
  call_timeout: 2s
gesture:
  profile: careful
  seed: 42
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(New(path))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, 50, cfg.Executor.MaxIterations)
	assert.Equal(t, BackendRemote, cfg.Device.Backend)
	assert.Equal(t, "bench-01", cfg.Device.Agent)
	assert.Equal(t, 2*time.Second, cfg.Device.CallTimeout)
	assert.Equal(t, "careful", cfg.Gesture.Profile)
	assert.Equal(t, int64(42), cfg.Gesture.Seed)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(New(""))
	require.NoError(t, err)
	assert.Equal(t, "scripts", cfg.Scripts.Dir)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(New(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DROIDSCRIPT_REDIS_ADDR", "redis.lab:6380")
	t.Setenv("DROIDSCRIPT_DEVICE_BACKEND", "fake")

	cfg, err := Load(New(""))
	require.NoError(t, err)
	assert.Equal(t, "redis.lab:6380", cfg.Redis.Addr)
	assert.Equal(t, BackendFake, cfg.Device.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"zero iterations", func(c *Config) { c.Executor.MaxIterations = 0 }, "max_iterations"},
		{"zero call depth", func(c *Config) { c.Executor.MaxCallDepth = 0 }, "max_call_depth"},
		{"negative sessions", func(c *Config) { c.Executor.MaxSessions = -1 }, "max_sessions"},
		{"unknown backend", func(c *Config) { c.Device.Backend = "usb" }, "unknown backend"},
		{"remote without agent", func(c *Config) { c.Device.Backend = BackendRemote }, "agent is required"},
		{"agent cannot be remote", func(c *Config) { c.Agent.Backend = BackendRemote }, "agent.backend"},
		{"negative retention", func(c *Config) { c.Server.RunRetention = -time.Hour }, "run_retention"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
