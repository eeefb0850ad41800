package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatframe-ai/chatframe/internal/agent"
	"github.com/chatframe-ai/chatframe/internal/event"
	"github.com/chatframe-ai/chatframe/internal/logging"
	"github.com/chatframe-ai/chatframe/pkg/types"
)

// ErrSessionBusy rejects a message while the session already has a live
// generation.
var ErrSessionBusy = errors.New("generation already in progress")

// clientIDPrefix marks client-minted session IDs the server adopts verbatim
// on registration. Anything else gets a fresh server-side ID.
const clientIDPrefix = "session_"

// ControllerConfig tunes the per-generation machinery. Zero values fall back
// to the package defaults.
type ControllerConfig struct {
	Supervisor SupervisorConfig
	Relay      RelayConfig
	// Welcome overrides the transcript seed text, mostly for tests.
	Welcome string
}

// Controller is the entry point for everything a connected client can do to
// a conversation: register for history, send a message, stop the running
// generation, clear the transcript. It is the only writer of transcripts;
// workers and relays never touch the store.
type Controller struct {
	store    *Store
	registry *Registry
	sup      *Supervisor
	sink     Sink
	relayCfg RelayConfig
	deadline time.Duration
	welcome  string
}

// NewController wires the controller over its collaborators. sink receives
// relay flushes; pass BusSink{} in production, a recorder in tests.
func NewController(store *Store, registry *Registry, a agent.Agent, sink Sink, cfg ControllerConfig) *Controller {
	welcome := cfg.Welcome
	if welcome == "" {
		welcome = WelcomeText
	}
	deadline := cfg.Supervisor.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Controller{
		store:    store,
		registry: registry,
		sup:      NewSupervisor(a, cfg.Supervisor),
		sink:     sink,
		relayCfg: cfg.Relay,
		deadline: deadline,
		welcome:  welcome,
	}
}

// HandleRegister adopts the client's session ID when it carries the client
// prefix, otherwise mints one. A brand-new transcript is seeded with the
// welcome message; either way the full history is published and returned.
func (c *Controller) HandleRegister(clientID string) (string, []types.Message, error) {
	sessionID := clientID
	if !strings.HasPrefix(clientID, clientIDPrefix) {
		sessionID = uuid.NewString()
	}

	info, created := c.store.GetOrCreate(sessionID)
	sessionID = info.ID
	if created {
		logging.Info().Str("session_id", sessionID).Msg("created new conversation")
		event.Publish(event.Event{Type: event.SessionCreated, SessionID: sessionID, Data: event.SessionCreatedData{Info: info}})
		if _, err := c.store.Append(sessionID, types.RoleAssistant, c.welcome); err != nil {
			return "", nil, err
		}
	} else {
		logging.Info().Str("session_id", sessionID).Int("messages", info.Messages).Msg("restored existing conversation")
	}

	history, err := c.store.History(sessionID)
	if err != nil {
		return "", nil, err
	}
	event.Publish(event.Event{Type: event.SessionHistory, SessionID: sessionID, Data: event.SessionHistoryData{Messages: history}})
	return sessionID, history, nil
}

// HandleMessage runs one full user turn: validation, transcript append,
// farewell shortcut, then a supervised generation. It blocks until the
// generation reaches a terminal state and returns the appended assistant
// message, or nil when the turn produced none (silent rejection, CANCELLED,
// TIMED_OUT).
func (c *Controller) HandleMessage(ctx context.Context, sessionID, text string) (*types.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	if c.registry.Live(sessionID) {
		logging.Warn().Str("session_id", sessionID).Msg("message rejected, generation in progress")
		event.Publish(event.Event{Type: event.SessionBusy, SessionID: sessionID, Data: event.SessionBusyData{Reason: busyReason}})
		return nil, ErrSessionBusy
	}

	info, created := c.store.GetOrCreate(sessionID)
	sessionID = info.ID
	if created {
		event.Publish(event.Event{Type: event.SessionCreated, SessionID: sessionID, Data: event.SessionCreatedData{Info: info}})
	}

	userMsg, err := c.store.Append(sessionID, types.RoleUser, trimmed)
	if err != nil {
		return nil, err
	}
	event.Publish(event.Event{Type: event.MessageReceived, SessionID: sessionID, Data: event.MessageReceivedData{Message: userMsg}})

	if isFarewell(trimmed) {
		reply, err := c.store.Append(sessionID, types.RoleAssistant, FarewellText)
		if err != nil {
			return nil, err
		}
		event.Publish(event.Event{Type: event.MessageResponse, SessionID: sessionID, Data: event.MessageResponseData{Message: reply}})
		return &reply, nil
	}

	return c.generate(ctx, sessionID, trimmed)
}

// generate drives one supervised generation and finalizes the transcript
// according to the terminal state. The registry entry is always ended and
// the typing indicator always cleared, whatever the outcome.
func (c *Controller) generate(ctx context.Context, sessionID, text string) (*types.Message, error) {
	token := c.registry.Begin(sessionID)
	defer func() {
		c.registry.End(sessionID, token)
		event.Publish(event.Event{Type: event.SessionTyping, SessionID: sessionID, Data: event.SessionTypingData{Typing: false}})
	}()

	event.Publish(event.Event{Type: event.SessionTyping, SessionID: sessionID, Data: event.SessionTypingData{Typing: true}})
	event.Publish(event.Event{Type: event.MessageStreamStart, SessionID: sessionID})

	relay := NewRelay(sessionID, c.sink, token, c.relayCfg)
	outcome := c.sup.Run(ctx, sessionID, text, token, relay)

	switch outcome.State {
	case StateCompleted:
		relay.Close()
		reply, err := c.store.Append(sessionID, types.RoleAssistant, outcome.Result)
		if err != nil {
			return nil, err
		}
		event.Publish(event.Event{Type: event.MessageStreamEnd, SessionID: sessionID})
		event.Publish(event.Event{Type: event.MessageResponse, SessionID: sessionID, Data: event.MessageResponseData{Message: reply}})
		return &reply, nil

	case StateErrored:
		relay.Close()
		reply, err := c.store.Append(sessionID, types.RoleAssistant, errorReply(outcome.Err))
		if err != nil {
			return nil, err
		}
		event.Publish(event.Event{Type: event.MessageResponse, SessionID: sessionID, Data: event.MessageResponseData{Message: reply}})
		return &reply, nil

	case StateTimedOut:
		event.Publish(event.Event{Type: event.GenerationStopped, SessionID: sessionID, Data: event.GenerationStoppedData{
			Notice: timeoutNotice(c.deadline),
			State:  string(StateTimedOut),
		}})
		return nil, nil

	default: // StateCancelled
		notice := noticeStoppedByUser
		if !outcome.Started {
			notice = noticeStoppedBeforeStart
		}
		event.Publish(event.Event{Type: event.GenerationStopped, SessionID: sessionID, Data: event.GenerationStoppedData{
			Notice: notice,
			State:  string(StateCancelled),
		}})
		return nil, nil
	}
}

// HandleStop signals the session's live generation. It reports whether one
// existed and emits the matching acknowledgement or rejection.
func (c *Controller) HandleStop(sessionID string) bool {
	if c.registry.Signal(sessionID) {
		logging.Info().Str("session_id", sessionID).Msg("stop generation requested")
		event.Publish(event.Event{Type: event.StopAcknowledged, SessionID: sessionID})
		return true
	}
	event.Publish(event.Event{Type: event.StopRejected, SessionID: sessionID, Data: event.StopRejectedData{Reason: stopRejectedReason}})
	return false
}

// HandleClear wipes the transcript, creating the session when absent,
// re-seeds the welcome message and announces the cleared conversation.
func (c *Controller) HandleClear(sessionID string) (string, []types.Message, error) {
	info, _ := c.store.GetOrCreate(sessionID)
	sessionID = info.ID
	if err := c.store.Clear(sessionID); err != nil {
		return "", nil, err
	}
	if _, err := c.store.Append(sessionID, types.RoleAssistant, c.welcome); err != nil {
		return "", nil, err
	}

	history, err := c.store.History(sessionID)
	if err != nil {
		return "", nil, err
	}
	logging.Info().Str("session_id", sessionID).Msg("conversation cleared")
	event.Publish(event.Event{Type: event.SessionCleared, SessionID: sessionID, Data: event.SessionClearedData{Messages: history}})
	return sessionID, history, nil
}
