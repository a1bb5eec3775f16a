package chatstore

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// Store is the conversation persistence contract. All implementations are
// safe for concurrent use across distinct conversation ids; the session
// layer serializes access within one id.
type Store interface {
	// CreateConversation allocates a fresh conversation with an empty
	// message list. An empty title gets DefaultTitle.
	CreateConversation(ctx context.Context, title string) (*Conversation, error)

	// GetConversation returns nil, nil when the id is unknown.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// GetMessages returns the ordered history for id. An unknown id
	// returns an empty slice, not an error.
	GetMessages(ctx context.Context, id string) ([]Message, error)

	// SaveMessages replaces the full message list for id atomically and
	// advances the conversation's updated_at. On failure the prior list
	// is left intact.
	SaveMessages(ctx context.Context, id string, messages []Message) error

	// ListConversations returns summaries ordered by updated_at
	// descending. The ordering is a user-facing contract.
	ListConversations(ctx context.Context) ([]ConversationSummary, error)

	// RenameConversation is idempotent; renaming an unknown id is a no-op.
	RenameConversation(ctx context.Context, id, title string) error

	// DeleteConversation is idempotent; deleting an unknown id is a no-op.
	DeleteConversation(ctx context.Context, id string) error
}

// Execer is an interface for executing SQL statements.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ExecQuerier combines Execer and sqlscan.Querier for operations that need
// both SELECT and INSERT/UPDATE/DELETE capabilities.
type ExecQuerier interface {
	Execer
	sqlscan.Querier
}
