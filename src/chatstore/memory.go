package chatstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store used as the degraded fallback when the
// sqlite backing is unavailable, and directly in tests. Semantics match the
// sqlite store, including retention, which is checked lazily on read.
type MemoryStore struct {
	mu        sync.Mutex
	convs     map[string]*Conversation
	messages  map[string][]Message
	retention time.Duration
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:     make(map[string]*Conversation),
		messages:  make(map[string][]Message),
		retention: DefaultRetention,
		now:       time.Now,
	}
}

// SetRetention overrides the retention window. Zero disables expiry.
func (s *MemoryStore) SetRetention(retention time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = retention
}

// expireLocked drops conversations past the retention window. Callers hold mu.
func (s *MemoryStore) expireLocked() {
	if s.retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.retention)
	for id, conv := range s.convs {
		if conv.UpdatedAt.Before(cutoff) {
			delete(s.convs, id)
			delete(s.messages, id)
		}
	}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	if title == "" {
		title = DefaultTitle
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conv := &Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.convs[conv.ID] = conv
	s.messages[conv.ID] = []Message{}

	c := *conv
	return &c, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()

	conv, ok := s.convs[id]
	if !ok {
		return nil, nil
	}
	c := *conv
	return &c, nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, id string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()

	msgs := s.messages[id]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) SaveMessages(ctx context.Context, id string, messages []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	saved := make([]Message, len(messages))
	copy(saved, messages)
	for i := range saved {
		if saved[i].ID == "" {
			saved[i].ID = uuid.New().String()
		}
		if saved[i].CreatedAt.IsZero() {
			saved[i].CreatedAt = now
		}
	}
	s.messages[id] = saved

	if conv, ok := s.convs[id]; ok {
		conv.UpdatedAt = now
	} else {
		// Saving against an id the store has never seen still works; the
		// record materializes with the placeholder title.
		s.convs[id] = &Conversation{ID: id, Title: DefaultTitle, CreatedAt: now, UpdatedAt: now}
	}
	return nil
}

func (s *MemoryStore) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()

	summaries := make([]ConversationSummary, 0, len(s.convs))
	for id, conv := range s.convs {
		summaries = append(summaries, ConversationSummary{
			ID:           id,
			Title:        conv.Title,
			MessageCount: len(s.messages[id]),
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (s *MemoryStore) RenameConversation(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.convs[id]; ok {
		conv.Title = title
		conv.UpdatedAt = s.now()
	}
	return nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.convs, id)
	delete(s.messages, id)
	return nil
}
