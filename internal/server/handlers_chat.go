package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatframe-ai/chatframe/internal/event"
	"github.com/chatframe-ai/chatframe/internal/logging"
	"github.com/chatframe-ai/chatframe/internal/session"
)

// Socket timings: pings run a little under the read deadline so an idle but
// healthy connection never expires.
const (
	socketReadDeadline = 60 * time.Second
	socketPingInterval = 54 * time.Second
)

// Inbound frame types of the chat protocol.
const (
	frameRegister = "register"
	frameMessage  = "message"
	frameStop     = "stop"
	frameClear    = "clear"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // chat page may be served from another origin
	},
}

// inboundFrame is the JSON envelope read from the client.
type inboundFrame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionID,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// outboundFrame is the JSON envelope written to the client. Type carries the
// bus event name so the client handles pushed and replied frames uniformly.
type outboundFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionID,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// textPayload is the data of a "message" frame.
type textPayload struct {
	Text string `json:"text"`
}

// chatConn is one upgraded websocket connection. Writes are serialized
// through mu; sessionID is set by register and read by the event forwarder.
type chatConn struct {
	conn *websocket.Conn

	mu        sync.Mutex
	sessionID string
}

func (c *chatConn) currentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *chatConn) setSession(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// send writes one frame. Safe for concurrent use.
func (c *chatConn) send(frame outboundFrame) {
	frame.Timestamp = time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		logging.Debug().Err(err).Msg("websocket write failed")
	}
}

func (c *chatConn) sendError(message string) {
	c.send(outboundFrame{
		Type: "error",
		Data: map[string]string{"message": message},
	})
}

func (c *chatConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// chatSocket handles GET /ws: the socket chat protocol. The client registers
// a session, then exchanges message/stop/clear frames; everything the bus
// publishes for that session is pushed down the same connection.
func (srv *Server) chatSocket(w http.ResponseWriter, r *http.Request) {
	// Subscribe before upgrading; an upgraded connection can no longer receive
	// an HTTP error.
	stream, err := event.Stream(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &chatConn{conn: conn}

	conn.SetReadDeadline(time.Now().Add(socketReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(socketReadDeadline))
		return nil
	})

	go srv.forwardEvents(ctx, c, stream)
	go srv.pingLoop(ctx, c)

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(socketReadDeadline))

		srv.handleFrame(ctx, c, frame)
	}
}

// handleFrame dispatches one inbound frame. Long-running work (the chat turn)
// runs off the read loop so stop frames stay responsive.
func (srv *Server) handleFrame(ctx context.Context, c *chatConn, frame inboundFrame) {
	if frame.Type == frameRegister {
		srv.register(c, frame.SessionID)
		return
	}

	sessionID := c.currentSession()
	if sessionID == "" {
		c.sendError("register a session first")
		return
	}
	if frame.SessionID != "" && frame.SessionID != sessionID {
		c.sendError("session mismatch")
		return
	}

	switch frame.Type {
	case frameMessage:
		var payload textPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			c.sendError("invalid message payload")
			return
		}
		go func() {
			if _, err := srv.controller.HandleMessage(ctx, sessionID, payload.Text); err != nil {
				// Busy rejections already rode the bus as session.busy.
				if !errors.Is(err, session.ErrSessionBusy) {
					c.sendError(err.Error())
				}
			}
		}()
	case frameStop:
		srv.controller.HandleStop(sessionID)
	case frameClear:
		if _, _, err := srv.controller.HandleClear(sessionID); err != nil {
			c.sendError(err.Error())
		}
	default:
		c.sendError("unsupported frame type: " + frame.Type)
	}
}

// register adopts or mints a session, binds the connection to it and replies
// with the transcript directly; the registration's bus events predate this
// connection's interest in the session.
func (srv *Server) register(c *chatConn, clientID string) {
	sessionID, history, err := srv.controller.HandleRegister(clientID)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.setSession(sessionID)
	logging.Info().Str("sessionID", sessionID).Msg("websocket session registered")

	c.send(outboundFrame{
		Type:      string(event.SessionHistory),
		SessionID: sessionID,
		Data:      event.SessionHistoryData{Messages: history},
	})
}

// forwardEvents pushes the registered session's bus events to the client in
// publish order. Registration-scoped events are skipped; register replies to
// the socket directly.
func (srv *Server) forwardEvents(ctx context.Context, c *chatConn, stream <-chan event.Event) {
	// Bounded buffer between the bus feed and the socket write: a slow client
	// loses frames instead of backpressuring the bus.
	pending := make(chan event.Event, 64)
	go func() {
		defer close(pending)
		for e := range stream {
			if e.Type == event.SessionCreated || e.Type == event.SessionHistory {
				continue
			}
			if sid := c.currentSession(); sid == "" || e.SessionID != sid {
				continue
			}
			select {
			case pending <- e:
			default:
				logging.Warn().
					Str("eventType", string(e.Type)).
					Msg("websocket frame dropped: client too slow")
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-pending:
			if !ok {
				return
			}
			c.send(outboundFrame{
				Type:      string(e.Type),
				SessionID: e.SessionID,
				Data:      e.Data,
			})
		}
	}
}

// pingLoop keeps the connection's read deadline fed.
func (srv *Server) pingLoop(ctx context.Context, c *chatConn) {
	ticker := time.NewTicker(socketPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
