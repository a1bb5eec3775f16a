package threadmap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/notevault/vaultbridge/src/chatstore"
	"github.com/notevault/vaultbridge/src/session"
)

// Discord caps thread names at 100 characters and message bodies at 2000.
const (
	threadNameLimit    = 100
	messageBodyLimit   = 2000
	placeholderContent = "…"
)

// BotConfig configures the Discord transport adapter.
type BotConfig struct {
	Token          string
	InboxChannelID string
	// EditInterval throttles placeholder edits while streaming.
	EditInterval time.Duration
	// ArchiveAfter is the idle window before a thread is archived.
	ArchiveAfter time.Duration
	// SweepInterval is how often idle threads are checked.
	SweepInterval time.Duration
}

func (c *BotConfig) applyDefaults() {
	if c.EditInterval <= 0 {
		c.EditInterval = 1500 * time.Millisecond
	}
	if c.ArchiveAfter <= 0 {
		c.ArchiveAfter = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 15 * time.Minute
	}
}

// Bot listens for inbox messages, creates one thread per conversation, and
// streams agent replies by editing a single placeholder message.
type Bot struct {
	cfg      BotConfig
	dg       *discordgo.Session
	mapper   *Mapper
	sessions *session.Manager
	store    chatstore.Store
	logger   *slog.Logger
}

func NewBot(cfg BotConfig, mapper *Mapper, sessions *session.Manager, store chatstore.Store, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	return &Bot{
		cfg:      cfg,
		dg:       dg,
		mapper:   mapper,
		sessions: sessions,
		store:    store,
		logger:   logger,
	}, nil
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.onMessageCreate(ctx, m)
	})

	if err := b.mapper.Load(ctx); err != nil {
		// Recoverable: threads without a mapping get fresh conversations.
		b.logger.Warn("failed to load thread mappings", "error", err)
	}

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	defer b.dg.Close()

	b.logger.Info("discord bot connected", "inbox_channel", b.cfg.InboxChannelID)

	go b.sweepIdleThreads(ctx)

	<-ctx.Done()
	return nil
}

func (b *Bot) onMessageCreate(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}

	switch {
	case m.ChannelID == b.cfg.InboxChannelID:
		b.startThread(ctx, m, content)
	default:
		if _, mapped := b.mapper.Resolve(m.ChannelID); mapped {
			b.continueThread(ctx, m.ChannelID, content)
		} else if b.isManagedThread(m.ChannelID) {
			// Mapping lost (restart without durable backing): start a
			// fresh conversation rather than failing the thread.
			b.logger.Warn("thread mapping lost, starting fresh conversation", "thread", m.ChannelID)
			b.rebindThread(ctx, m.ChannelID, content)
		}
	}
}

// startThread handles the first message in the inbox channel: thread,
// conversation, mapping, then the first turn.
func (b *Bot) startThread(ctx context.Context, m *discordgo.MessageCreate, content string) {
	thread, err := b.dg.MessageThreadStartComplex(m.ChannelID, m.ID, &discordgo.ThreadStart{
		Name:                truncateRunes(content, threadNameLimit),
		AutoArchiveDuration: 1440,
	})
	if err != nil {
		b.logger.Error("failed to start thread", "error", err)
		return
	}

	conv, err := b.store.CreateConversation(ctx, "")
	if err != nil {
		b.logger.Error("failed to create conversation", "error", err)
		return
	}
	b.mapper.Record(ctx, thread.ID, conv.ID)

	b.runTurn(ctx, thread.ID, conv.ID, content)
}

func (b *Bot) continueThread(ctx context.Context, threadID, content string) {
	conversationID, ok := b.mapper.Resolve(threadID)
	if !ok {
		b.rebindThread(ctx, threadID, content)
		return
	}
	b.mapper.Touch(ctx, threadID)
	b.runTurn(ctx, threadID, conversationID, content)
}

// rebindThread creates a replacement conversation for a thread whose
// mapping is gone. History continuity is lost for the thread, not the bot.
func (b *Bot) rebindThread(ctx context.Context, threadID, content string) {
	conv, err := b.store.CreateConversation(ctx, "")
	if err != nil {
		b.logger.Error("failed to create replacement conversation", "error", err)
		return
	}
	b.mapper.Record(ctx, threadID, conv.ID)
	b.runTurn(ctx, threadID, conv.ID, content)
}

// isManagedThread reports whether the channel is a thread under the inbox
// channel, i.e. one this bot created at some point.
func (b *Bot) isManagedThread(channelID string) bool {
	ch, err := b.dg.State.Channel(channelID)
	if err != nil || ch == nil {
		ch, err = b.dg.Channel(channelID)
		if err != nil || ch == nil {
			return false
		}
	}
	return ch.IsThread() && ch.ParentID == b.cfg.InboxChannelID
}

// runTurn streams one turn into the thread by editing a placeholder
// message, then finalizes it. The session layer persists exactly once at
// completion, which is what makes the edit-at-the-end model safe.
func (b *Bot) runTurn(ctx context.Context, threadID, conversationID, content string) {
	placeholder, err := b.dg.ChannelMessageSend(threadID, placeholderContent)
	if err != nil {
		b.logger.Error("failed to send placeholder", "thread", threadID, "error", err)
		return
	}

	editor := newMessageEditor(b.dg, threadID, placeholder.ID, b.cfg.EditInterval)

	result, err := b.sessions.RunTurn(ctx, conversationID, content, editor.forward)
	if err != nil {
		b.logger.Warn("turn failed", "conversation_id", conversationID, "error", err)
		editor.fail()
		return
	}

	editor.finish()
	b.mapper.Touch(ctx, threadID)

	if result.Retitled {
		// Best effort: a failed rename is logged, not retried.
		if _, err := b.dg.ChannelEdit(threadID, &discordgo.ChannelEdit{
			Name: truncateRunes(result.Title, threadNameLimit),
		}); err != nil {
			b.logger.Warn("failed to rename thread", "thread", threadID, "error", err)
		}
	}
}

// sweepIdleThreads archives threads with no activity inside the window.
// Archival closes the handle only; the conversation record stays.
func (b *Bot) sweepIdleThreads(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-b.cfg.ArchiveAfter)
			for _, entry := range b.mapper.IdleBefore(cutoff) {
				archived := true
				if _, err := b.dg.ChannelEdit(entry.Handle, &discordgo.ChannelEdit{Archived: &archived}); err != nil {
					b.logger.Warn("failed to archive thread", "thread", entry.Handle, "error", err)
					continue
				}
				b.mapper.MarkArchived(ctx, entry.Handle)
				b.logger.Info("archived idle thread", "thread", entry.Handle)
			}
		}
	}
}

// messageEditor accumulates streamed fragments and pushes them into one
// Discord message on a throttle, respecting the platform rate limits.
type messageEditor struct {
	dg        *discordgo.Session
	channelID string
	messageID string
	interval  time.Duration

	content  strings.Builder
	lastEdit time.Time
}

func newMessageEditor(dg *discordgo.Session, channelID, messageID string, interval time.Duration) *messageEditor {
	return &messageEditor{
		dg:        dg,
		channelID: channelID,
		messageID: messageID,
		interval:  interval,
	}
}

// forward is the session FragmentFunc. Only text fragments render; tool
// activity is shown as a single marker line so the user sees progress.
func (e *messageEditor) forward(part chatstore.MessagePart) error {
	switch part.Type {
	case chatstore.PartText:
		e.content.WriteString(part.Text)
	case chatstore.PartToolInvocation:
		e.content.WriteString("\n-# ⚙ " + part.ToolName + "\n")
	case chatstore.PartToolResult, chatstore.PartStepBoundary:
		return nil
	}

	if time.Since(e.lastEdit) < e.interval {
		return nil
	}
	return e.edit(e.content.String() + " …")
}

// finish writes the final content once the turn has been persisted.
func (e *messageEditor) finish() {
	if err := e.edit(e.content.String()); err != nil {
		// Stream content already reached the user through earlier edits;
		// the persisted record is complete regardless.
		return
	}
}

// fail replaces the placeholder with an explicit error state so the user
// can retry; it is visually distinct from a normal completion. The cause is
// logged by the caller, not shown to the user.
func (e *messageEditor) fail() {
	msg := "⚠️ The agent failed to answer. Send your message again to retry."
	if e.content.Len() > 0 {
		msg = e.content.String() + "\n\n" + msg
	}
	_ = e.edit(msg)
}

func (e *messageEditor) edit(content string) error {
	if content == "" {
		content = placeholderContent
	}
	// TODO: split replies over 2000 characters across follow-up messages
	// instead of truncating.
	content = truncateRunes(content, messageBodyLimit)

	if _, err := e.dg.ChannelMessageEdit(e.channelID, e.messageID, content); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	e.lastEdit = time.Now()
	return nil
}

func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
