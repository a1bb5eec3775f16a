// Package threadmap binds externally created conversation handles (Discord
// threads) to conversation ids, and carries the Discord transport adapter
// built on that mapping.
package threadmap

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Mapping is one handle↔conversation binding.
type Mapping struct {
	Handle         string    `json:"handle" db:"handle"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Archived       bool      `json:"archived" db:"archived"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Backing is the optional durable side of the mapper. A nil backing means
// mappings live only in memory: losing them on restart degrades to fresh
// conversations, never a crash.
type Backing interface {
	LoadAll(ctx context.Context) ([]Mapping, error)
	Upsert(ctx context.Context, m Mapping) error
	Delete(ctx context.Context, handle string) error
}

// Mapper is the memory-resident handle table. All methods are safe for
// concurrent use; entries are independent per handle.
type Mapper struct {
	mu      sync.Mutex
	entries map[string]*Mapping
	byConv  map[string]string
	backing Backing
	logger  *slog.Logger
	now     func() time.Time
}

func NewMapper(backing Backing, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		entries: make(map[string]*Mapping),
		byConv:  make(map[string]string),
		backing: backing,
		logger:  logger,
		now:     time.Now,
	}
}

// Load hydrates the memory table from the backing. Safe to call without a
// backing; an error leaves the mapper empty and usable.
func (m *Mapper) Load(ctx context.Context) error {
	if m.backing == nil {
		return nil
	}
	mappings, err := m.backing.LoadAll(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range mappings {
		entry := mappings[i]
		m.entries[entry.Handle] = &entry
		m.byConv[entry.ConversationID] = entry.Handle
	}
	m.logger.Info("thread mappings loaded", "count", len(mappings))
	return nil
}

// Resolve returns the conversation bound to handle, if any.
func (m *Mapper) Resolve(handle string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[handle]
	if !ok {
		return "", false
	}
	return entry.ConversationID, true
}

// HandleFor returns the handle bound to a conversation id, if any.
func (m *Mapper) HandleFor(conversationID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.byConv[conversationID]
	return handle, ok
}

// Record binds handle to conversationID for the life of the handle.
func (m *Mapper) Record(ctx context.Context, handle, conversationID string) {
	now := m.now()
	entry := Mapping{
		Handle:         handle,
		ConversationID: conversationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	m.mu.Lock()
	m.entries[handle] = &entry
	m.byConv[conversationID] = handle
	m.mu.Unlock()

	m.persist(ctx, entry)
}

// Touch marks activity on a handle, deferring archival.
func (m *Mapper) Touch(ctx context.Context, handle string) {
	m.mu.Lock()
	entry, ok := m.entries[handle]
	if ok {
		entry.UpdatedAt = m.now()
		entry.Archived = false
	}
	var snapshot Mapping
	if ok {
		snapshot = *entry
	}
	m.mu.Unlock()

	if ok {
		m.persist(ctx, snapshot)
	}
}

// MarkArchived flags a handle as archived. The conversation record is
// untouched: archival only affects the external handle's visibility.
func (m *Mapper) MarkArchived(ctx context.Context, handle string) {
	m.mu.Lock()
	entry, ok := m.entries[handle]
	if ok {
		entry.Archived = true
	}
	var snapshot Mapping
	if ok {
		snapshot = *entry
	}
	m.mu.Unlock()

	if ok {
		m.persist(ctx, snapshot)
	}
}

// Forget removes the binding entirely (e.g. the thread was deleted).
func (m *Mapper) Forget(ctx context.Context, handle string) {
	m.mu.Lock()
	if entry, ok := m.entries[handle]; ok {
		delete(m.byConv, entry.ConversationID)
		delete(m.entries, handle)
	}
	m.mu.Unlock()

	if m.backing != nil {
		if err := m.backing.Delete(ctx, handle); err != nil {
			m.logger.Warn("failed to delete thread mapping", "handle", handle, "error", err)
		}
	}
}

// IdleBefore returns unarchived mappings with no activity since cutoff.
func (m *Mapper) IdleBefore(cutoff time.Time) []Mapping {
	m.mu.Lock()
	defer m.mu.Unlock()

	var idle []Mapping
	for _, entry := range m.entries {
		if !entry.Archived && entry.UpdatedAt.Before(cutoff) {
			idle = append(idle, *entry)
		}
	}
	return idle
}

func (m *Mapper) persist(ctx context.Context, entry Mapping) {
	if m.backing == nil {
		return
	}
	if err := m.backing.Upsert(ctx, entry); err != nil {
		m.logger.Warn("failed to persist thread mapping", "handle", entry.Handle, "error", err)
	}
}
