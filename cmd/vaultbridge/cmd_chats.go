package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/notevault/vaultbridge/src/chatstore"
)

// ChatsCmd inspects and manages stored conversations.
type ChatsCmd struct {
	List   ChatsListCmd   `cmd:"" default:"1" help:"List stored conversations"`
	Show   ChatsShowCmd   `cmd:"" help:"Print a conversation's messages"`
	Rename ChatsRenameCmd `cmd:"" help:"Rename a conversation"`
	Delete ChatsDeleteCmd `cmd:"" help:"Delete a conversation"`
}

type ChatsListCmd struct{}

func (c *ChatsListCmd) Run(cli *CLI) error {
	store, cleanup, err := openChatsStore(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	summaries, err := store.ListConversations(context.Background())
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No conversations.")
		return nil
	}

	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	for _, s := range summaries {
		fmt.Printf("%s  %s  %s\n",
			dim(s.ID),
			bold(s.Title),
			dim(fmt.Sprintf("%d messages, updated %s", s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04"))))
	}
	return nil
}

type ChatsShowCmd struct {
	ID string `arg:"" help:"Conversation id"`
}

func (c *ChatsShowCmd) Run(cli *CLI) error {
	store, cleanup, err := openChatsStore(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	messages, err := store.GetMessages(context.Background(), c.ID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		fmt.Println("No messages.")
		return nil
	}

	userLabel := color.New(color.FgCyan, color.Bold).SprintFunc()
	assistantLabel := color.New(color.FgGreen, color.Bold).SprintFunc()
	toolLabel := color.New(color.Faint).SprintFunc()
	for _, msg := range messages {
		label := userLabel("user")
		if msg.Role == chatstore.RoleAssistant {
			label = assistantLabel("assistant")
		}
		fmt.Printf("%s:\n", label)
		for _, part := range msg.Parts {
			switch part.Type {
			case chatstore.PartText:
				fmt.Println(part.Text)
			case chatstore.PartToolInvocation:
				fmt.Println(toolLabel("[tool: " + part.ToolName + "]"))
			}
		}
		fmt.Println()
	}
	return nil
}

type ChatsRenameCmd struct {
	ID    string `arg:"" help:"Conversation id"`
	Title string `arg:"" help:"New title"`
}

func (c *ChatsRenameCmd) Run(cli *CLI) error {
	store, cleanup, err := openChatsStore(cli)
	if err != nil {
		return err
	}
	defer cleanup()
	return store.RenameConversation(context.Background(), c.ID, c.Title)
}

type ChatsDeleteCmd struct {
	ID string `arg:"" help:"Conversation id"`
}

func (c *ChatsDeleteCmd) Run(cli *CLI) error {
	store, cleanup, err := openChatsStore(cli)
	if err != nil {
		return err
	}
	defer cleanup()
	return store.DeleteConversation(context.Background(), c.ID)
}

// openChatsStore opens the sqlite store directly; inspection commands make
// no sense against an empty in-memory fallback.
func openChatsStore(cli *CLI) (*chatstore.DB, func(), error) {
	cfg, logger, err := loadConfig(cli)
	if err != nil {
		return nil, nil, err
	}
	db, err := chatstore.Open(cfg.Store.DatabasePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store at %s: %w", cfg.Store.DatabasePath, err)
	}
	return db, func() { db.Close() }, nil
}
