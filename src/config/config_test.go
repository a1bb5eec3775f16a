package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8787", cfg.Server.Addr)
	assert.Equal(t, 24, cfg.Store.RetentionHours)
	assert.Equal(t, 24*time.Hour, cfg.Store.Retention())
	assert.NotEmpty(t, cfg.Agent.Command)
	assert.Equal(t, "info", cfg.LogLevel)

	require.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"addr": ":9999", "shared_secret": "s3cret"},
		"agent": {"command": "claude", "vault_directory": "/vault"},
		"log_level": "debug"
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Server.SharedSecret)
	assert.Equal(t, "/vault", cfg.Agent.VaultDirectory)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched sections keep defaults.
	assert.Equal(t, 24, cfg.Store.RetentionHours)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VAULTBRIDGE_ADDR", ":7070")
	t.Setenv("VAULTBRIDGE_VAULT_DIR", "/notes")
	t.Setenv("VAULTBRIDGE_RETENTION_HOURS", "48")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"agent": {"command": "claude", "vault_directory": "/vault"}
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "/notes", cfg.Agent.VaultDirectory)
	assert.Equal(t, 48, cfg.Store.RetentionHours)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
		{name: "missing agent command", mutate: func(c *Config) { c.Agent.Command = "" }},
		{name: "negative retention", mutate: func(c *Config) { c.Store.RetentionHours = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
