// Package agent defines the reply-producing side of a conversation: an
// opaque Agent that turns a user message into assistant text, optionally
// streaming incidental output while it works.
//
// Two implementations are provided. ArkAgent answers through a Volcengine
// ARK chat model driven by an Eino chain and keeps a rolling conversation
// window. ScriptedAgent is a deterministic stand-in used when no model
// credentials are configured, and in tests.
package agent

import (
	"context"
	"io"
)

// Agent produces a reply to a user message. Implementations may stream
// partial text to output as it is produced; the returned string is the
// complete reply. Invoke may block for the full duration of a generation
// and should honor ctx cancellation where the backing model supports it.
type Agent interface {
	Invoke(ctx context.Context, message string, output io.Writer) (string, error)
}

// InvocationError wraps a failure from the underlying model call so callers
// can distinguish agent failures from their own plumbing errors.
type InvocationError struct {
	Err error
}

func (e *InvocationError) Error() string {
	return "agent invocation failed: " + e.Err.Error()
}

func (e *InvocationError) Unwrap() error { return e.Err }
