package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "stockfish", cfg.Engine.BinaryPath)
	assert.Equal(t, 13, cfg.Engine.Depth)
	assert.Equal(t, 4*time.Second, cfg.Engine.HandshakeTimeout)
	assert.Equal(t, 15*time.Second, cfg.Engine.DepthTimeout)
	assert.Equal(t, 3*time.Second, cfg.Engine.MoveTimeSlack)
	assert.Equal(t, 16, cfg.Analysis.MaxPVLength)
	assert.False(t, cfg.Analysis.WhitePerspective)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.CacheTTL())
	assert.Empty(t, cfg.Store.Path)
	assert.Equal(t, 30*24*time.Hour, cfg.Store.MaxAge)
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
engine:
  url: ws://localhost:8080/engine
  depth: 20
  moveTime: 1500ms
  options:
    Threads: "4"
    Hash: "128"
analysis:
  whitePerspective: true
logging:
  level: debug
store:
  path: /tmp/results.db
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/engine", cfg.Engine.URL)
	assert.Equal(t, 20, cfg.Engine.Depth)
	assert.Equal(t, 1500*time.Millisecond, cfg.Engine.MoveTime)
	assert.Equal(t, "4", cfg.Engine.Options["threads"])
	assert.Equal(t, "128", cfg.Engine.Options["hash"])
	assert.True(t, cfg.Analysis.WhitePerspective)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/results.db", cfg.Store.Path)
	assert.Equal(t, 15*time.Second, cfg.Engine.DepthTimeout, "unset keys keep defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHESS_ANALYZER_ENGINE_BINARYPATH", "my-stockfish")
	t.Setenv("CHESS_ANALYZER_ENGINE_DEPTH", "9")
	t.Setenv("CHESS_ANALYZER_LOGGING_LEVEL", "debug")
	t.Setenv("CHESS_ANALYZER_CACHE_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "my-stockfish", cfg.Engine.BinaryPath)
	assert.Equal(t, 9, cfg.Engine.Depth)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Cache.Enabled)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantError bool
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:   "zero depth",
			modify: func(c *Config) { c.Engine.Depth = 0 },
		},
		{
			name:   "negative pv length",
			modify: func(c *Config) { c.Analysis.MaxPVLength = -3 },
		},
		{
			name:   "tiny timeouts",
			modify: func(c *Config) { c.Engine.HandshakeTimeout = 0; c.Engine.DepthTimeout = time.Millisecond },
		},
		{
			name:      "missing absolute binary",
			modify:    func(c *Config) { c.Engine.BinaryPath = "/definitely/not/here/stockfish" },
			wantError: true,
		},
		{
			name:      "no engine at all",
			modify:    func(c *Config) { c.Engine.BinaryPath = ""; c.Engine.URL = "" },
			wantError: true,
		},
		{
			name:      "non websocket url",
			modify:    func(c *Config) { c.Engine.URL = "http://localhost:8080" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.modify(cfg)

			err = cfg.validate()
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.GreaterOrEqual(t, cfg.Engine.Depth, 1)
			assert.GreaterOrEqual(t, cfg.Analysis.MaxPVLength, 1)
			assert.GreaterOrEqual(t, cfg.Engine.HandshakeTimeout, 100*time.Millisecond)
			assert.GreaterOrEqual(t, cfg.Engine.DepthTimeout, time.Second)
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CHESS_ANALYZER_CONFIG", "/custom/config.yaml")
	assert.Equal(t, "/custom/config.yaml", GetConfigPath())

	t.Setenv("CHESS_ANALYZER_CONFIG", "")
	path := GetConfigPath()
	// Could be empty or a config file found on disk.
	t.Logf("Config path without env var: %s", path)
}
