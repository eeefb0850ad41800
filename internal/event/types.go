package event

import "github.com/chatframe-ai/chatframe/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info types.Session `json:"info"`
}

// SessionHistoryData is the data for session.history events, sent when a
// client registers. Messages are in transcript order.
type SessionHistoryData struct {
	Messages []types.Message `json:"messages"`
}

// SessionTypingData is the data for session.typing events.
type SessionTypingData struct {
	Typing bool `json:"typing"`
}

// SessionClearedData is the data for session.cleared events. Carries the
// re-seeded transcript (the welcome message).
type SessionClearedData struct {
	Messages []types.Message `json:"messages"`
}

// SessionBusyData is the data for session.busy events, emitted when a message
// is rejected because the session already has a live generation.
type SessionBusyData struct {
	Reason string `json:"reason"`
}

// SessionExpiredData is the data for session.expired events, emitted by the
// store sweep.
type SessionExpiredData struct {
	SessionID string `json:"sessionID"`
}

// MessageReceivedData is the data for message.received events (the echo of
// the just-received user message).
type MessageReceivedData struct {
	Message types.Message `json:"message"`
}

// MessagePartialData is the data for message.partial events: one flushed
// burst of streamed output.
type MessagePartialData struct {
	Text string `json:"text"`
}

// MessageResponseData is the data for message.response events (terminal
// assistant turn, COMPLETED or ERRORED).
type MessageResponseData struct {
	Message types.Message `json:"message"`
}

// StopRejectedData is the data for generation.stop.rejected events.
type StopRejectedData struct {
	Reason string `json:"reason"`
}

// GenerationStoppedData is the data for generation.stopped events
// (CANCELLED or TIMED_OUT). Notice is the user-facing text; State names the
// terminal state that produced it.
type GenerationStoppedData struct {
	Notice string `json:"notice"`
	State  string `json:"state"`
}
