package chatstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
)

// CreateConversation allocates a fresh conversation record.
func (d *DB) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	if title == "" {
		title = DefaultTitle
	}
	now := d.now()
	conv := &Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, query, conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by its ID. Returns nil, nil when
// the id is unknown.
func (d *DB) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`
	var conv Conversation
	err := sqlscan.Get(ctx, d.db, &conv, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetMessages retrieves all messages for a conversation ordered by sequence.
// An unknown id yields an empty slice.
func (d *DB) GetMessages(ctx context.Context, id string) ([]Message, error) {
	query := `SELECT id, conversation_id, role, parts, created_at FROM messages WHERE conversation_id = ? ORDER BY seq`
	var messages []Message
	if err := sqlscan.Select(ctx, d.db, &messages, query, id); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

// SaveMessages replaces the full message list for a conversation in one
// transaction, so readers never observe a partial list.
func (d *DB) SaveMessages(ctx context.Context, id string, messages []Message) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := d.now()

	// Saving against an id the store has never seen still works; the
	// record materializes with the placeholder title.
	ensure := `INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, ensure, id, DefaultTitle, now, now); err != nil {
		return fmt.Errorf("failed to ensure conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	insert := `INSERT INTO messages (id, conversation_id, seq, role, parts, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	for i := range messages {
		m := &messages[i]
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, insert, m.ID, id, i, m.Role, m.Parts, m.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message save: %w", err)
	}
	return nil
}

// ListConversations returns summaries ordered by most recently updated.
func (d *DB) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	query := `
		SELECT c.id, c.title, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
		FROM conversations c
		ORDER BY c.updated_at DESC`
	var summaries []ConversationSummary
	if err := sqlscan.Select(ctx, d.db, &summaries, query); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if summaries == nil {
		summaries = []ConversationSummary{}
	}
	return summaries, nil
}

// RenameConversation updates the title. Renaming an unknown id is a no-op.
func (d *DB) RenameConversation(ctx context.Context, id, title string) error {
	query := `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, query, title, d.now(), id); err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes the conversation and its messages. Deleting an
// unknown id is a no-op.
func (d *DB) DeleteConversation(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}
