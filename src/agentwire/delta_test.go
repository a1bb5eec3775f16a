package agentwire

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeDeltaChunk builds a wire line the way the agent process does.
func encodeDeltaChunk(t *testing.T, text string) string {
	t.Helper()
	b, err := json.Marshal(text)
	require.NoError(t, err)
	return fmt.Sprintf(`{"type":"assistant-delta","delta":%s}`, b)
}

func TestExtractDelta(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  string
	}{
		{
			name:  "plain text",
			chunk: `{"type":"assistant-delta","delta":"hello world"}`,
			want:  "hello world",
		},
		{
			name:  "escaped quotes do not truncate",
			chunk: `{"type":"assistant-delta","delta":"mit der Notiz \"Ende\""}`,
			want:  `mit der Notiz "Ende"`,
		},
		{
			name:  "literal newline sequences become real newlines",
			chunk: `{"type":"assistant-delta","delta":"line one\nline two"}`,
			want:  "line one\nline two",
		},
		{
			name:  "escaped backslash",
			chunk: `{"type":"assistant-delta","delta":"C:\\vault\\notes"}`,
			want:  `C:\vault\notes`,
		},
		{
			name:  "backslash before quote",
			chunk: `{"delta":"ends with backslash \\" }`,
			want:  `ends with backslash \`,
		},
		{
			name:  "tabs and carriage returns",
			chunk: `{"delta":"a\tb\rc"}`,
			want:  "a\tb\rc",
		},
		{
			name:  "unicode escape",
			chunk: `{"delta":"caf\u00e9"}`,
			want:  "café",
		},
		{
			name:  "surrogate pair",
			chunk: `{"delta":"\ud83d\ude00"}`,
			want:  "😀",
		},
		{
			name:  "whitespace around colon",
			chunk: `{"delta": "spaced"}`,
			want:  "spaced",
		},
		{
			name:  "no delta field",
			chunk: `{"type":"tool-call","name":"Read","input":{"path":"x.md"}}`,
			want:  "",
		},
		{
			name:  "unterminated delta",
			chunk: `{"delta":"cut off mid str`,
			want:  "",
		},
		{
			name:  "empty chunk",
			chunk: "",
			want:  "",
		},
		{
			name:  "trailing fields after delta",
			chunk: `{"delta":"keep this","seq":12}`,
			want:  "keep this",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDelta(tt.chunk))
		})
	}
}

func TestExtractDeltaRoundTrip(t *testing.T) {
	inputs := []string{
		"plain",
		`quotes "inside" here`,
		`backslash \ and \\ pairs`,
		"newline\nand\ttab",
		"trailing backslash \\",
		`mix: "a\b"` + "\n" + `c\"d`,
		"unicode: caféのノート 😀",
		"",
		`\n literal-looking but real backslash-n`,
	}

	for _, s := range inputs {
		got := ExtractDelta(encodeDeltaChunk(t, s))
		assert.Equal(t, s, got, "round trip for %q", s)
	}
}

func TestExtractDeltaIsPure(t *testing.T) {
	chunk := `{"delta":"same \"every\" time\n"}`
	first := ExtractDelta(chunk)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, ExtractDelta(chunk))
	}
}
