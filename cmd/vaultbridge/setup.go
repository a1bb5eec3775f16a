package main

import (
	"log/slog"

	"github.com/notevault/vaultbridge/src/agentproc"
	"github.com/notevault/vaultbridge/src/chatstore"
	"github.com/notevault/vaultbridge/src/config"
	"github.com/notevault/vaultbridge/src/session"
)

// loadConfig resolves the effective configuration and logger for a command.
func loadConfig(cli *CLI) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}
	return cfg, createLogger(level), nil
}

// openStore opens the durable store, degrading to memory when sqlite is
// unavailable. The *chatstore.DB is nil in the degraded case.
func openStore(cfg *config.Config, logger *slog.Logger) (chatstore.Store, *chatstore.DB) {
	store := chatstore.OpenOrFallback(cfg.Store.DatabasePath, logger)
	switch s := store.(type) {
	case *chatstore.DB:
		s.SetRetention(cfg.Store.Retention())
		return s, s
	case *chatstore.MemoryStore:
		s.SetRetention(cfg.Store.Retention())
	}
	return store, nil
}

// buildSessions wires the agent client and session manager from config.
func buildSessions(cfg *config.Config, store chatstore.Store, logger *slog.Logger) *session.Manager {
	agent := agentproc.NewCLIClient(cfg.Agent.Command, cfg.Agent.Args, logger)
	return session.NewManager(store, agent, session.Options{
		WorkingDirectory: cfg.Agent.VaultDirectory,
		MaxTurnMessages:  cfg.Agent.MaxTurnMessages,
		TurnTimeout:      cfg.Agent.TurnTimeout(),
		Logger:           logger,
	})
}
