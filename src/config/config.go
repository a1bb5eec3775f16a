// Package config loads vaultbridge configuration: defaults, then an
// optional JSON file, then VAULTBRIDGE_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
)

// Config is the complete configuration for vaultbridge.
type Config struct {
	// Server configures the HTTP bridge.
	Server ServerConfig `json:"server"`

	// Store configures conversation persistence.
	Store StoreConfig `json:"store"`

	// Agent configures the external coding-agent CLI.
	Agent AgentConfig `json:"agent" validate:"required"`

	// Discord configures the Discord transport; only required for the
	// discord command.
	Discord DiscordConfig `json:"discord"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
	// SharedSecret gates every route except the health check. Empty
	// disables the check (local development only).
	SharedSecret string `json:"shared_secret"`
}

type StoreConfig struct {
	// DatabasePath is the sqlite file; empty selects the XDG state dir.
	DatabasePath string `json:"database_path"`
	// RetentionHours is how long conversations survive after their last
	// write. Zero keeps them forever.
	RetentionHours int `json:"retention_hours" validate:"gte=0"`
	// PurgeIntervalMinutes is the background sweep cadence.
	PurgeIntervalMinutes int `json:"purge_interval_minutes" validate:"gte=0"`
}

type AgentConfig struct {
	// Command is the agent binary.
	Command string `json:"command" validate:"required"`
	Args    []string `json:"args,omitempty"`
	// VaultDirectory is the working directory for every invocation.
	VaultDirectory string `json:"vault_directory" validate:"required"`
	// TurnTimeoutSeconds bounds one turn end to end. Zero means no limit.
	TurnTimeoutSeconds int `json:"turn_timeout_seconds" validate:"gte=0"`
	// MaxTurnMessages caps the trailing history sent per turn; zero sends
	// everything.
	MaxTurnMessages int `json:"max_turn_messages" validate:"gte=0"`
}

type DiscordConfig struct {
	Token          string `json:"token"`
	InboxChannelID string `json:"inbox_channel_id"`
	// EditIntervalMillis throttles streaming message edits.
	EditIntervalMillis int `json:"edit_interval_millis" validate:"gte=0"`
	// ArchiveAfterHours is the idle window before threads are archived.
	ArchiveAfterHours int `json:"archive_after_hours" validate:"gte=0"`
}

// Retention converts the configured hours to a duration.
func (c StoreConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

func (c StoreConfig) PurgeInterval() time.Duration {
	return time.Duration(c.PurgeIntervalMinutes) * time.Minute
}

func (c AgentConfig) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutSeconds) * time.Second
}

func (c DiscordConfig) EditInterval() time.Duration {
	return time.Duration(c.EditIntervalMillis) * time.Millisecond
}

func (c DiscordConfig) ArchiveAfter() time.Duration {
	return time.Duration(c.ArchiveAfterHours) * time.Hour
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8787",
		},
		Store: StoreConfig{
			DatabasePath:         DefaultDatabasePath(),
			RetentionHours:       24,
			PurgeIntervalMinutes: 60,
		},
		Agent: AgentConfig{
			Command:            "claude",
			Args:               []string{"--output-format", "stream-json"},
			VaultDirectory:     ".",
			TurnTimeoutSeconds: 600,
		},
		Discord: DiscordConfig{
			EditIntervalMillis: 1500,
			ArchiveAfterHours:  24,
		},
		LogLevel: "info",
	}
}

// DefaultDatabasePath places the database under the XDG state directory.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.StateHome, "vaultbridge", "conversations.db")
}

// DefaultConfigPath is where Load looks when no explicit path is given.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "vaultbridge", "config.json")
}

// Load builds the effective configuration. A missing file at the default
// path is fine; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration's declared constraints.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// applyEnvOverrides applies VAULTBRIDGE_* environment variables on top of
// the loaded configuration.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("VAULTBRIDGE_ADDR", &cfg.Server.Addr)
	setString("VAULTBRIDGE_SHARED_SECRET", &cfg.Server.SharedSecret)
	setString("VAULTBRIDGE_DATABASE_PATH", &cfg.Store.DatabasePath)
	setInt("VAULTBRIDGE_RETENTION_HOURS", &cfg.Store.RetentionHours)
	setString("VAULTBRIDGE_AGENT_COMMAND", &cfg.Agent.Command)
	setString("VAULTBRIDGE_VAULT_DIR", &cfg.Agent.VaultDirectory)
	setInt("VAULTBRIDGE_TURN_TIMEOUT_SECONDS", &cfg.Agent.TurnTimeoutSeconds)
	setInt("VAULTBRIDGE_MAX_TURN_MESSAGES", &cfg.Agent.MaxTurnMessages)
	setString("VAULTBRIDGE_DISCORD_TOKEN", &cfg.Discord.Token)
	setString("VAULTBRIDGE_DISCORD_INBOX_CHANNEL", &cfg.Discord.InboxChannelID)
	setString("VAULTBRIDGE_LOG_LEVEL", &cfg.LogLevel)
}
