package session

import (
	"strings"

	"github.com/notevault/vaultbridge/src/chatstore"
)

// accumulator collects forwarded fragments into the parts of the assistant
// message being streamed. Consecutive text deltas collapse into one text
// part; tool parts keep their emission position relative to the text around
// them, so the persisted message reads in exactly the order the agent spoke.
type accumulator struct {
	parts []chatstore.MessagePart
	text  strings.Builder
}

func (a *accumulator) addText(delta string) {
	if delta == "" {
		return
	}
	a.text.WriteString(delta)
}

// flushText closes the currently open text run, if any.
func (a *accumulator) flushText() {
	if a.text.Len() == 0 {
		return
	}
	a.parts = append(a.parts, chatstore.MessagePart{
		Type: chatstore.PartText,
		Text: a.text.String(),
	})
	a.text.Reset()
}

func (a *accumulator) addPart(part chatstore.MessagePart) {
	a.flushText()
	a.parts = append(a.parts, part)
}

func (a *accumulator) finish() []chatstore.MessagePart {
	a.flushText()
	return a.parts
}
