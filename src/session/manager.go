// Package session orchestrates conversation turns: it owns the working copy
// of a conversation's history for the duration of one turn, replays it into
// the stateless agent, streams the response out to the transport, and
// persists the finished turn exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notevault/vaultbridge/src/agentproc"
	"github.com/notevault/vaultbridge/src/agentwire"
	"github.com/notevault/vaultbridge/src/chatstore"
)

// FragmentFunc receives each fragment as it is emitted, in order. Returning
// an error aborts the turn as a transport failure.
type FragmentFunc func(part chatstore.MessagePart) error

// TurnResult reports a completed turn.
type TurnResult struct {
	ConversationID string
	// Assistant is the persisted assistant message.
	Assistant chatstore.Message
	Usage     *agentwire.Usage
	// Retitled is set when this turn performed the conversation's one-time
	// title derivation; transports may mirror it (thread rename).
	Retitled bool
	Title    string
}

// Options configures a Manager.
type Options struct {
	// WorkingDirectory is the vault root passed to every agent invocation.
	WorkingDirectory string

	// TitleLimit bounds derived titles, defaulting to defaultTitleLimit.
	TitleLimit int

	// MaxTurnMessages, when positive, caps how much trailing history is
	// sent to the agent. This is a surrounding policy knob: persistence
	// always keeps the full list.
	MaxTurnMessages int

	// TurnTimeout, when positive, bounds one turn end to end.
	TurnTimeout time.Duration

	Logger *slog.Logger
}

// Manager runs turns against conversations. Turns within one conversation
// id are strictly serialized through a per-id lock: two concurrent agent
// invocations on the same id would read the same prior history and race to
// persist, silently dropping one side.
type Manager struct {
	store  chatstore.Store
	agent  agentproc.Client
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(store chatstore.Store, agent agentproc.Client, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		agent:  agent,
		opts:   opts,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockFor returns the serialization lock for a conversation id.
func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

// RunTurn executes one full turn for the conversation. The user message is
// persisted before the agent is invoked, so a failed turn never loses user
// input; the assistant message is persisted exactly once, only on a clean
// completion.
func (m *Manager) RunTurn(ctx context.Context, conversationID, userText string, forward FragmentFunc) (*TurnResult, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, ErrEmptyMessage
	}
	if forward == nil {
		forward = func(chatstore.MessagePart) error { return nil }
	}

	if m.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.TurnTimeout)
		defer cancel()
	}

	lock := m.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	logger := m.logger.With("conversation_id", conversationID)
	state := StateLoadingHistory
	logger.Debug("turn state", "state", state)

	history, err := m.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, m.fail(logger, state, fmt.Errorf("failed to load history: %w", err))
	}

	state = StateBuildingRequest
	logger.Debug("turn state", "state", state, "history", len(history))

	userMsg := chatstore.Message{
		ID:        uuid.New().String(),
		Role:      chatstore.RoleUser,
		Parts:     chatstore.PartList{{Type: chatstore.PartText, Text: userText}},
		CreatedAt: time.Now(),
	}
	working := append(history, userMsg)

	// The user turn is saved on its own before the agent runs: a retry of
	// a failed turn must not resend it, and a crash must not lose it.
	if err := m.store.SaveMessages(ctx, conversationID, working); err != nil {
		return nil, m.fail(logger, state, fmt.Errorf("failed to save user message: %w", err))
	}

	state = StateStreaming
	logger.Debug("turn state", "state", state)

	outbound := working
	if limit := m.opts.MaxTurnMessages; limit > 0 && len(outbound) > limit {
		outbound = outbound[len(outbound)-limit:]
	}

	stream, err := m.agent.Invoke(ctx, agentproc.InvokeRequest{
		Messages:         outbound,
		WorkingDirectory: m.opts.WorkingDirectory,
	})
	if err != nil {
		return nil, m.fail(logger, state, fmt.Errorf("failed to invoke agent: %w", err))
	}
	defer stream.Close()

	acc := &accumulator{}
	result, err := m.consumeStream(ctx, stream, acc, forward)
	if err != nil {
		return nil, m.fail(logger, state, err)
	}

	state = StateFinalizing
	logger.Debug("turn state", "state", state)

	parts := acc.finish()
	if len(parts) == 0 && result.Content != "" {
		// Some agent builds only report aggregate content on the result
		// event; fall back to it rather than persisting an empty message.
		parts = []chatstore.MessagePart{{Type: chatstore.PartText, Text: result.Content}}
	}
	if len(parts) == 0 {
		return nil, m.fail(logger, state, ErrEmptyResponse)
	}

	assistant := chatstore.Message{
		ID:        uuid.New().String(),
		Role:      chatstore.RoleAssistant,
		Parts:     parts,
		CreatedAt: time.Now(),
	}
	final := append(working, assistant)

	// The single persistence point for the turn's assistant message.
	if err := m.store.SaveMessages(ctx, conversationID, final); err != nil {
		return nil, m.fail(logger, state, fmt.Errorf("failed to save turn: %w", err))
	}

	res := &TurnResult{
		ConversationID: conversationID,
		Assistant:      assistant,
		Usage:          result.Usage,
	}
	m.maybeRetitle(ctx, logger, conversationID, result.Title, userText, res)

	logger.Debug("turn state", "state", StateIdle)
	return res, nil
}

// consumeStream routes agent events until the terminal result event.
func (m *Manager) consumeStream(ctx context.Context, stream agentwire.Stream, acc *accumulator, forward FragmentFunc) (*agentwire.Event, error) {
	for {
		ev, err := stream.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrNoResult
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrTurnCancelled, ctx.Err())
			}
			return nil, fmt.Errorf("agent stream failed: %w", err)
		}

		switch ev.Type {
		case agentwire.EventAssistantDelta:
			part := chatstore.MessagePart{Type: chatstore.PartText, Text: ev.Delta}
			if err := forward(part); err != nil {
				return nil, fmt.Errorf("transport rejected fragment: %w", err)
			}
			acc.addText(ev.Delta)

		case agentwire.EventToolCall:
			part := chatstore.MessagePart{
				Type:       chatstore.PartToolInvocation,
				ToolCallID: ev.ToolCallID,
				ToolName:   ev.ToolName,
				ToolInput:  ev.ToolInput,
			}
			if err := forward(part); err != nil {
				return nil, fmt.Errorf("transport rejected fragment: %w", err)
			}
			acc.addPart(part)

		case agentwire.EventToolResult:
			part := chatstore.MessagePart{
				Type:       chatstore.PartToolResult,
				ToolCallID: ev.ToolCallID,
				ToolOutput: ev.ToolOutput,
				IsError:    ev.IsError,
			}
			if err := forward(part); err != nil {
				return nil, fmt.Errorf("transport rejected fragment: %w", err)
			}
			acc.addPart(part)

		case agentwire.EventSystem:
			// Step boundaries are forwarded so callers can render
			// progress, but never accumulated as content.
			if err := forward(chatstore.MessagePart{Type: chatstore.PartStepBoundary}); err != nil {
				return nil, fmt.Errorf("transport rejected fragment: %w", err)
			}

		case agentwire.EventResult:
			return ev, nil

		case agentwire.EventError:
			return nil, fmt.Errorf("agent reported error: %s", ev.Message)
		}
	}
}

// maybeRetitle performs the conversation's one-time title derivation: only
// while the record still carries the placeholder title.
func (m *Manager) maybeRetitle(ctx context.Context, logger *slog.Logger, conversationID, hint, userText string, res *TurnResult) {
	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil || conv == nil || conv.Title != chatstore.DefaultTitle {
		return
	}

	title := deriveTitle(hint, userText, m.opts.TitleLimit)
	if title == "" {
		return
	}
	if err := m.store.RenameConversation(ctx, conversationID, title); err != nil {
		logger.Warn("failed to set conversation title", "error", err)
		return
	}
	res.Retitled = true
	res.Title = title
	logger.Info("conversation titled", "title", title)
}

func (m *Manager) fail(logger *slog.Logger, from TurnState, err error) error {
	logger.Warn("turn failed", "from_state", from.String(), "error", err)
	return err
}
