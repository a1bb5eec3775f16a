package agentwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "assistant delta",
			line: `{"type":"assistant-delta","delta":"Hi"}`,
			want: Event{Type: EventAssistantDelta, Delta: "Hi"},
		},
		{
			name: "delta with escapes",
			line: `{"type":"assistant-delta","delta":"say \"hi\"\n"}`,
			want: Event{Type: EventAssistantDelta, Delta: "say \"hi\"\n"},
		},
		{
			name: "tool call",
			line: `{"type":"tool-call","tool_call_id":"t1","name":"Read","input":{"path":"inbox.md"}}`,
			want: Event{Type: EventToolCall, ToolCallID: "t1", ToolName: "Read", ToolInput: []byte(`{"path":"inbox.md"}`)},
		},
		{
			name: "tool result",
			line: `{"type":"tool-result","tool_call_id":"t1","output":"# Inbox","is_error":false}`,
			want: Event{Type: EventToolResult, ToolCallID: "t1", ToolOutput: "# Inbox"},
		},
		{
			name: "system init",
			line: `{"type":"system","subtype":"init"}`,
			want: Event{Type: EventSystem, Subtype: "init"},
		},
		{
			name: "result with usage and title",
			line: `{"type":"result","content":"done","title":"Inbox triage","usage":{"input_tokens":10,"output_tokens":4}}`,
			want: Event{Type: EventResult, Content: "done", Title: "Inbox triage", Usage: &Usage{InputTokens: 10, OutputTokens: 4}},
		},
		{
			name: "error event",
			line: `{"type":"error","message":"agent exploded"}`,
			want: Event{Type: EventError, Message: "agent exploded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeEvent([]byte(tt.line))
			assert.Equal(t, tt.want.Type, got.Type)
			assert.Equal(t, tt.want.Delta, got.Delta)
			assert.Equal(t, tt.want.ToolCallID, got.ToolCallID)
			assert.Equal(t, tt.want.ToolName, got.ToolName)
			assert.Equal(t, tt.want.ToolOutput, got.ToolOutput)
			assert.Equal(t, tt.want.Content, got.Content)
			assert.Equal(t, tt.want.Title, got.Title)
			assert.Equal(t, tt.want.Message, got.Message)
			if tt.want.ToolInput != nil {
				assert.JSONEq(t, string(tt.want.ToolInput), string(got.ToolInput))
			}
			if tt.want.Usage != nil {
				require.NotNil(t, got.Usage)
				assert.Equal(t, *tt.want.Usage, *got.Usage)
			}
		})
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	// A malformed line must not abort the stream: it degrades to an
	// ignorable event, or to a recovered delta when one is embedded.
	got := DecodeEvent([]byte(`this is not json`))
	assert.Equal(t, EventUnknown, got.Type)

	got = DecodeEvent([]byte(``))
	assert.Equal(t, EventUnknown, got.Type)

	got = DecodeEvent([]byte(`{"type":`))
	assert.Equal(t, EventUnknown, got.Type)

	// Truncated envelope with an intact delta field still yields text.
	got = DecodeEvent([]byte(`{"type":"assistant-delta","delta":"recovered \"text\"","seq`))
	assert.Equal(t, EventAssistantDelta, got.Type)
	assert.Equal(t, `recovered "text"`, got.Delta)
}
