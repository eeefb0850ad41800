package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chatframe-ai/chatframe/internal/agent"
	"github.com/chatframe-ai/chatframe/internal/event"
	"github.com/chatframe-ai/chatframe/pkg/types"
)

// mockResponseWriter implements http.Flusher for testing
type mockResponseWriter struct {
	*httptest.ResponseRecorder
	flushed int
}

func (m *mockResponseWriter) Flush() {
	m.flushed++
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{
		ResponseRecorder: httptest.NewRecorder(),
	}
}

type noFlushWriter struct{}

func (n *noFlushWriter) Header() http.Header       { return http.Header{} }
func (n *noFlushWriter) Write([]byte) (int, error) { return 0, nil }
func (n *noFlushWriter) WriteHeader(int)           {}

func TestNewSSEWriter(t *testing.T) {
	w := newMockResponseWriter()
	sse, err := newSSEWriter(w)
	if err != nil {
		t.Fatalf("newSSEWriter failed: %v", err)
	}
	if sse == nil {
		t.Fatal("SSE writer should not be nil")
	}
}

func TestNewSSEWriter_NoFlusher(t *testing.T) {
	_, err := newSSEWriter(&noFlushWriter{})
	if err == nil {
		t.Error("Expected error for writer without Flusher")
	}
}

func TestSSEWriter_WriteEvent(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	err := sse.writeEvent("message", event.Event{Type: event.MessagePartial, SessionID: "session_1"})
	if err != nil {
		t.Fatalf("writeEvent failed: %v", err)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: message\n") {
		t.Error("Expected event line")
	}
	if !strings.Contains(body, `"type":"message.partial"`) {
		t.Errorf("Expected data to carry the event type, got: %s", body)
	}
	if w.flushed == 0 {
		t.Error("Expected Flush to be called")
	}
}

func TestSSEWriter_WriteHeartbeat(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	sse.writeHeartbeat()

	body := w.Body.String()
	if !strings.Contains(body, ": heartbeat\n") {
		t.Errorf("Expected heartbeat comment, got: %s", body)
	}
	if w.flushed == 0 {
		t.Error("Expected Flush to be called")
	}
}

func TestSSEEventFormat(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	sse.writeEvent("message", event.Event{Type: event.SessionTyping})

	// SSE framing: event line, data line, blank line
	lines := strings.Split(w.Body.String(), "\n")
	if len(lines) < 3 {
		t.Fatalf("Expected at least 3 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "event: ") {
		t.Errorf("First line should be event, got: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "data: ") {
		t.Errorf("Second line should be data, got: %s", lines[1])
	}
	if lines[2] != "" {
		t.Errorf("Third line should be empty, got: %s", lines[2])
	}
}

// nextDataLine scans to the next SSE data line and returns its payload.
func nextDataLine(t *testing.T, scanner *bufio.Scanner) string {
	t.Helper()
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatal("Stream ended without a data line")
	return ""
}

func TestEvents_StreamsPublishedEvents(t *testing.T) {
	srv := setupTestServer(t, &agent.ScriptedAgent{Fallback: "unused"})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/event", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Expected text/event-stream, got %s", ct)
	}

	scanner := bufio.NewScanner(resp.Body)

	// The connection hello arrives before any bus traffic.
	hello := nextDataLine(t, scanner)
	if !strings.Contains(hello, string(event.ServerConnected)) {
		t.Fatalf("Expected the server.connected hello, got: %s", hello)
	}

	// Published only after the hello, so the subscription is live.
	event.Publish(event.Event{
		Type:      event.MessageReceived,
		SessionID: "session_sse",
		Data:      event.MessageReceivedData{Message: types.Message{ID: "m1", SessionID: "session_sse", Role: types.RoleUser, Content: "hi"}},
	})

	var e event.Event
	if err := json.Unmarshal([]byte(nextDataLine(t, scanner)), &e); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if e.Type != event.MessageReceived {
		t.Errorf("Type mismatch: got %s", e.Type)
	}
	if e.SessionID != "session_sse" {
		t.Errorf("SessionID mismatch: got %s", e.SessionID)
	}
}

func TestEvents_FiltersBySession(t *testing.T) {
	srv := setupTestServer(t, &agent.ScriptedAgent{Fallback: "unused"})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/event?sessionID=session_a", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	nextDataLine(t, scanner) // hello

	// The session_b event lands first on the bus; if filtering is broken it
	// will be the next data line.
	event.Publish(event.Event{Type: event.SessionTyping, SessionID: "session_b", Data: event.SessionTypingData{Typing: true}})
	event.Publish(event.Event{Type: event.SessionTyping, SessionID: "session_a", Data: event.SessionTypingData{Typing: true}})

	var e event.Event
	if err := json.Unmarshal([]byte(nextDataLine(t, scanner)), &e); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if e.SessionID != "session_a" {
		t.Errorf("Expected only session_a events, got one for %s", e.SessionID)
	}
}
