package threadmap

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/notevault/vaultbridge/src/chatstore"
)

// SQLBacking persists thread mappings in the chat store's database, in the
// thread_mappings table created by its migrations.
type SQLBacking struct {
	db chatstore.ExecQuerier
}

var _ Backing = (*SQLBacking)(nil)

func NewSQLBacking(db chatstore.ExecQuerier) *SQLBacking {
	return &SQLBacking{db: db}
}

func (b *SQLBacking) LoadAll(ctx context.Context) ([]Mapping, error) {
	query := `SELECT handle, conversation_id, archived, created_at, updated_at FROM thread_mappings`
	var mappings []Mapping
	if err := sqlscan.Select(ctx, b.db, &mappings, query); err != nil {
		return nil, fmt.Errorf("failed to load thread mappings: %w", err)
	}
	return mappings, nil
}

func (b *SQLBacking) Upsert(ctx context.Context, m Mapping) error {
	query := `
		INSERT INTO thread_mappings (handle, conversation_id, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			archived = excluded.archived,
			updated_at = excluded.updated_at`
	if _, err := b.db.ExecContext(ctx, query, m.Handle, m.ConversationID, m.Archived, m.CreatedAt, m.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert thread mapping: %w", err)
	}
	return nil
}

func (b *SQLBacking) Delete(ctx context.Context, handle string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM thread_mappings WHERE handle = ?`, handle); err != nil {
		return fmt.Errorf("failed to delete thread mapping: %w", err)
	}
	return nil
}
