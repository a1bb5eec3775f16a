package chatstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTitle is the placeholder assigned to a conversation until the
// session layer derives a real one after the first turn.
const DefaultTitle = "New Chat"

// Role values for Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Part types for MessagePart.Type.
const (
	PartText           = "text"
	PartToolInvocation = "tool-invocation"
	PartToolResult     = "tool-result"
	PartStepBoundary   = "step-boundary"
)

// Conversation is the per-id metadata record. Messages are stored
// separately and retrieved ordered.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ConversationSummary is the listing row returned by ListConversations.
type ConversationSummary struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	MessageCount int       `json:"message_count" db:"message_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// MessagePart is one typed fragment of message content. Exactly one of the
// content groups is populated depending on Type.
type MessagePart struct {
	Type string `json:"type"`

	// Text content, for PartText.
	Text string `json:"text,omitempty"`

	// Tool fields, for PartToolInvocation and PartToolResult. ToolCallID
	// links a result back to its invocation.
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolOutput string          `json:"tool_output,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// Message is a single entry in a conversation's ordered history.
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id,omitempty" db:"conversation_id"`
	Role           string    `json:"role" db:"role"`
	Parts          PartList  `json:"parts" db:"parts"`
	CreatedAt      time.Time `json:"timestamp" db:"created_at"`
}

// Text concatenates the message's text parts in order.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// PartList is a custom type for handling part arrays stored as JSON strings
// in the database.
type PartList []MessagePart

// Scan implements the sql.Scanner interface for PartList.
func (p *PartList) Scan(value interface{}) error {
	if value == nil {
		*p = PartList{}
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "" || v == "[]" {
			*p = PartList{}
			return nil
		}
		return json.Unmarshal([]byte(v), p)
	case []byte:
		if len(v) == 0 || string(v) == "[]" {
			*p = PartList{}
			return nil
		}
		return json.Unmarshal(v, p)
	default:
		return fmt.Errorf("cannot scan type %T into PartList", value)
	}
}

// Value implements the driver.Valuer interface for PartList.
func (p PartList) Value() (driver.Value, error) {
	if len(p) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
