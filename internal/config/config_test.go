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
	cfg := DefaultConfig()
	require.NoError(t, NewValidator().Validate(cfg))
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "restricted", cfg.Security.Profile)
	assert.Equal(t, "memory", cfg.State.Backend)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoaderFilePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9000"
security:
  profile: standard
state:
  backend: sqlite
  path: /tmp/state.db
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "standard", cfg.Security.Profile)
	assert.Equal(t, "sqlite", cfg.State.Backend)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoaderMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoaderEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":9000\"\n"), 0o600))
	t.Setenv("SF_SERVER_ADDRESS", ":9001")
	t.Setenv("SF_ENGINE_LEASE_TTL", "45s")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, ":9001", cfg.Server.Address)
	assert.Equal(t, 45*time.Second, cfg.Engine.LeaseTTL)
}

func TestLoaderCmdArgsOverrideEnv(t *testing.T) {
	t.Setenv("SF_SERVER_ADDRESS", ":9001")

	cfg, err := NewLoader().
		WithCmdArgs(map[string]string{"server.address": ":9002", "logging.level": "debug"}).
		Load()
	require.NoError(t, err)
	assert.Equal(t, ":9002", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoaderUnknownOverridePath(t *testing.T) {
	_, err := NewLoader().WithCmdArgs(map[string]string{"nope.value": "x"}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration path")
}
