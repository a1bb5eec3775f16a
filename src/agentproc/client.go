// Package agentproc invokes the external coding-agent CLI as a streaming
// subprocess. The agent is stateless: every invocation receives the full
// ordered conversation history and a working directory (the vault root) and
// answers with a stream of agentwire events.
package agentproc

import (
	"context"

	"github.com/notevault/vaultbridge/src/agentwire"
	"github.com/notevault/vaultbridge/src/chatstore"
)

// InvokeRequest carries one turn's input for the agent.
type InvokeRequest struct {
	// Messages is the complete ordered history, last entry being the new
	// user turn. It is forwarded verbatim.
	Messages []chatstore.Message `json:"messages"`

	// WorkingDirectory is the vault root the agent operates in.
	WorkingDirectory string `json:"working_directory"`
}

// Client starts one agent invocation. Cancelling ctx terminates only that
// invocation; the client itself stays usable for the next turn.
type Client interface {
	Invoke(ctx context.Context, req InvokeRequest) (agentwire.Stream, error)
}
