package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI represents the main CLI structure
type CLI struct {
	Config   string `help:"Path to config file" type:"path"`
	LogLevel string `default:"" help:"Log level (overrides config)"`

	Serve   ServeCmd   `cmd:"" help:"Run the HTTP bridge server"`
	Discord DiscordCmd `cmd:"" help:"Run the Discord bot"`
	Chats   ChatsCmd   `cmd:"" help:"Inspect and manage stored conversations"`
	Migrate MigrateCmd `cmd:"" help:"Database migrations"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("vaultbridge"),
		kong.Description("Session bridge between chat clients and a vault coding agent"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
