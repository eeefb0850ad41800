package testutil

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Frame mirrors the websocket envelope exchanged with the chat endpoint
type Frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionID,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// HistoryData is the payload of a session.history frame
type HistoryData struct {
	Messages []Message `json:"messages"`
}

// ChatSocket is a test client for the websocket chat surface
type ChatSocket struct {
	conn *websocket.Conn
}

// DialChatSocket connects to the /ws endpoint of the given base URL
func DialChatSocket(baseURL string) (*ChatSocket, error) {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	return &ChatSocket{conn: conn}, nil
}

// Send writes one frame; data may be nil.
func (s *ChatSocket) Send(frameType, sessionID string, data any) error {
	frame := map[string]any{
		"type":      frameType,
		"timestamp": time.Now().UnixMilli(),
	}
	if sessionID != "" {
		frame["sessionID"] = sessionID
	}
	if data != nil {
		frame["data"] = data
	}
	return s.conn.WriteJSON(frame)
}

// Register binds the connection to a session and returns the history frame
// the server replies with.
func (s *ChatSocket) Register(sessionID string) (*Frame, error) {
	if err := s.Send("register", sessionID, nil); err != nil {
		return nil, err
	}
	return s.WaitForFrame("session.history", 2*time.Second)
}

// SendText submits a user message for the registered session
func (s *ChatSocket) SendText(sessionID, text string) error {
	return s.Send("message", sessionID, map[string]string{"text": text})
}

// NextFrame reads one frame, failing after timeout
func (s *ChatSocket) NextFrame(timeout time.Duration) (*Frame, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	var frame Frame
	if err := s.conn.ReadJSON(&frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// WaitForFrame reads frames until one of the given type arrives, failing
// after timeout.
func (s *ChatSocket) WaitForFrame(frameType string, timeout time.Duration) (*Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("timeout waiting for frame: %s", frameType)
		}
		frame, err := s.NextFrame(remaining)
		if err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", frameType, err)
		}
		if frame.Type == frameType {
			return frame, nil
		}
	}
}

// Close closes the websocket connection
func (s *ChatSocket) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}
