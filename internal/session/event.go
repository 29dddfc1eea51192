package session

import (
	"context"
	"encoding/json"
)

// EventType tags the variants of a stream event.
type EventType string

const (
	// EventTextDelta carries an incremental chunk of assistant text.
	EventTextDelta EventType = "text_delta"
	// EventToolCall asks the consumer to run a tool and send the result back.
	EventToolCall EventType = "tool_call"
	// EventEnded is the final event of a session.
	EventEnded EventType = "ended"
)

// Reasons reported on EventEnded.
const (
	ReasonEndTurn   = "end_turn"
	ReasonMaxTokens = "max_tokens"
	ReasonError     = "error"
)

// Event is one message from the backend session. Events arrive in order
// and are consumed exactly once.
type Event struct {
	Type EventType

	// Text is set for EventTextDelta.
	Text string

	// ToolName, ToolInput and CallID are set for EventToolCall.
	ToolName  string
	ToolInput json.RawMessage
	CallID    string

	// Reason and Err are set for EventEnded.
	Reason string
	Err    error
}

// Session is one open conversation exchange with the backend. The
// producer behind Events is the backend transport; the orchestrator is
// the sole consumer. After an EventToolCall the producer pauses until
// SendToolResult delivers the answer, so results always re-enter the
// conversation before the next event.
type Session interface {
	// Events returns the ordered event stream. The channel is closed
	// when the session is over.
	Events() <-chan Event

	// SendToolResult delivers the result for the pending tool call.
	SendToolResult(ctx context.Context, callID, content string, isError bool) error

	// Close aborts the session and releases its resources. Safe to call
	// after the stream has already ended.
	Close() error
}

// Backend opens sessions. Implemented by AnthropicBackend and by test
// fakes.
type Backend interface {
	Open(ctx context.Context, prompt string) (Session, error)
}
