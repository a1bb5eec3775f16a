// Package agentwire decodes the streaming wire format emitted by the
// external coding-agent process: one JSON event per line, typed by a
// "type" field.
package agentwire

import (
	"encoding/json"
	"strings"
)

// EventType tags one streamed agent event.
type EventType string

const (
	EventSystem         EventType = "system"
	EventAssistantDelta EventType = "assistant-delta"
	EventToolCall       EventType = "tool-call"
	EventToolResult     EventType = "tool-result"
	EventResult         EventType = "result"
	EventError          EventType = "error"

	// EventUnknown marks a line that carried no recognizable event. The
	// stream continues; a malformed chunk never aborts a turn.
	EventUnknown EventType = ""
)

// Usage is the token accounting reported on the final result event.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Event is one decoded agent stream event. Fields are populated according
// to Type.
type Event struct {
	Type EventType `json:"type"`

	// Subtype qualifies system events (e.g. "init", "step").
	Subtype string `json:"subtype,omitempty"`

	// Delta carries the decoded text fragment of an assistant-delta event.
	Delta string `json:"delta,omitempty"`

	// Tool fields for tool-call and tool-result events.
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"name,omitempty"`
	ToolInput  json.RawMessage `json:"input,omitempty"`
	ToolOutput string          `json:"output,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`

	// Result fields, present only on the terminal result event.
	Content string `json:"content,omitempty"`
	Title   string `json:"title,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`

	// Message carries the description of an error event.
	Message string `json:"message,omitempty"`
}

// DecodeEvent parses one line of the agent's output stream. A line that is
// not a well-formed event degrades: if it still carries an embedded delta
// field the text is recovered through ExtractDelta, otherwise an
// EventUnknown is returned. DecodeEvent never fails.
func DecodeEvent(line []byte) Event {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return Event{Type: EventUnknown}
	}

	var ev Event
	if err := json.Unmarshal([]byte(trimmed), &ev); err == nil && ev.Type != EventUnknown {
		if ev.Type == EventAssistantDelta {
			// Re-extract from the raw line so transports that embed
			// escape sequences literally still decode correctly.
			ev.Delta = ExtractDelta(trimmed)
		}
		return ev
	}

	if delta := ExtractDelta(trimmed); delta != "" {
		return Event{Type: EventAssistantDelta, Delta: delta}
	}
	return Event{Type: EventUnknown}
}

// Stream is a sequence of agent events. Read returns io.EOF after the last
// event; Close releases the underlying source and is safe to call twice.
type Stream interface {
	Read() (*Event, error)
	Close() error
}
