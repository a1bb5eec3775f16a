package session

import "errors"

var (
	// ErrEmptyMessage is returned when a turn is started with no user text.
	ErrEmptyMessage = errors.New("user message is empty")

	// ErrNoResult marks a stream that closed without a terminal result
	// event. The turn is treated as failed and nothing is persisted for
	// the assistant.
	ErrNoResult = errors.New("agent stream ended without a result event")

	// ErrEmptyResponse marks a completed stream that produced no content.
	ErrEmptyResponse = errors.New("agent produced an empty response")

	// ErrTurnCancelled is returned when the caller cancelled the in-flight
	// turn. The conversation is immediately usable for the next turn.
	ErrTurnCancelled = errors.New("turn cancelled")
)
