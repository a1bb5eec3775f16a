package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/notevault/vaultbridge/src/threadmap"
)

// DiscordCmd runs the Discord bot.
type DiscordCmd struct {
	Token string `help:"Bot token (overrides config)"`
}

func (c *DiscordCmd) Run(cli *CLI) error {
	cfg, logger, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if c.Token != "" {
		cfg.Discord.Token = c.Token
	}
	if cfg.Discord.Token == "" {
		return errors.New("discord token is required (config discord.token or VAULTBRIDGE_DISCORD_TOKEN)")
	}
	if cfg.Discord.InboxChannelID == "" {
		return errors.New("discord inbox channel id is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, db := openStore(cfg, logger)
	var backing threadmap.Backing
	if db != nil {
		defer db.Close()
		db.StartPurgeLoop(ctx, cfg.Store.PurgeInterval())
		backing = threadmap.NewSQLBacking(db.DB())
	}
	mapper := threadmap.NewMapper(backing, logger)

	sessions := buildSessions(cfg, store, logger)

	bot, err := threadmap.NewBot(threadmap.BotConfig{
		Token:          cfg.Discord.Token,
		InboxChannelID: cfg.Discord.InboxChannelID,
		EditInterval:   cfg.Discord.EditInterval(),
		ArchiveAfter:   cfg.Discord.ArchiveAfter(),
	}, mapper, sessions, store, logger)
	if err != nil {
		return err
	}

	return bot.Run(ctx)
}
