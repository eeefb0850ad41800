package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TestClient provides HTTP client utilities for testing
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// RequestOption configures HTTP requests
type RequestOption func(*http.Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery adds query parameters
func WithQuery(params map[string]string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// ---- Wire types ----
//
// Client-side mirrors of the API payloads, kept separate from the server's
// own types so the tests exercise the contract rather than the structs.

// Session represents a session summary response
type Session struct {
	ID       string      `json:"id"`
	Time     SessionTime `json:"time"`
	Messages int         `json:"messages"`
}

// SessionTime contains session timestamps in Unix milliseconds
type SessionTime struct {
	Created    int64 `json:"created"`
	LastActive int64 `json:"lastActive"`
}

// Message represents a transcript message
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Time      MessageTime `json:"time"`
}

// MessageTime contains message timestamps in Unix milliseconds
type MessageTime struct {
	Created int64 `json:"created"`
}

// MessageEnvelope is the POST message response; Message is null when the
// generation was stopped or timed out.
type MessageEnvelope struct {
	Message *Message `json:"message"`
}

// HistoryPage is one page of a session transcript
type HistoryPage struct {
	Items      []Message `json:"items"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalItems int       `json:"totalItems"`
	TotalPages int       `json:"totalPages"`
	HasPrev    bool      `json:"hasPrev"`
	HasNext    bool      `json:"hasNext"`
}

// ClearResult is the POST clear response
type ClearResult struct {
	SessionID string    `json:"sessionID"`
	Messages  []Message `json:"messages"`
}

// ConfigDocument is one extracted configuration document
type ConfigDocument struct {
	Name      string          `json:"name"`
	MessageID string          `json:"messageID"`
	Config    json.RawMessage `json:"config"`
}

// ErrorBody is the error envelope returned on failures
type ErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ---- Session Helpers ----

// ListSessions lists all sessions
func (c *TestClient) ListSessions(ctx context.Context) ([]Session, error) {
	resp, err := c.Get(ctx, "/session")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to list sessions: %d - %s", resp.StatusCode, resp.String())
	}

	var sessions []Session
	if err := resp.JSON(&sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession retrieves a session by ID
func (c *TestClient) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	resp, err := c.Get(ctx, "/session/"+sessionID)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get session: %d - %s", resp.StatusCode, resp.String())
	}

	var session Session
	if err := resp.JSON(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SendMessage posts a user message and blocks until the turn finishes.
// The envelope's Message is nil when the generation was stopped or timed out.
func (c *TestClient) SendMessage(ctx context.Context, sessionID, text string) (*MessageEnvelope, error) {
	resp, err := c.Post(ctx, "/session/"+sessionID+"/message", map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to send message: %d - %s", resp.StatusCode, resp.String())
	}

	var envelope MessageEnvelope
	if err := resp.JSON(&envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// GetHistory retrieves one page of the session transcript
func (c *TestClient) GetHistory(ctx context.Context, sessionID string, page int) (*HistoryPage, error) {
	resp, err := c.Get(ctx, fmt.Sprintf("/session/%s/history?page=%d", sessionID, page))
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get history: %d - %s", resp.StatusCode, resp.String())
	}

	var history HistoryPage
	if err := resp.JSON(&history); err != nil {
		return nil, err
	}
	return &history, nil
}

// StopGeneration signals the session's running generation and reports
// whether one was actually signalled.
func (c *TestClient) StopGeneration(ctx context.Context, sessionID string) (bool, error) {
	resp, err := c.Post(ctx, "/session/"+sessionID+"/stop", nil)
	if err != nil {
		return false, err
	}
	if !resp.IsSuccess() {
		return false, fmt.Errorf("failed to stop generation: %d - %s", resp.StatusCode, resp.String())
	}

	var result struct {
		Stopped bool `json:"stopped"`
	}
	if err := resp.JSON(&result); err != nil {
		return false, err
	}
	return result.Stopped, nil
}

// ClearSession resets the session transcript to the welcome message
func (c *TestClient) ClearSession(ctx context.Context, sessionID string) (*ClearResult, error) {
	resp, err := c.Post(ctx, "/session/"+sessionID+"/clear", nil)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to clear session: %d - %s", resp.StatusCode, resp.String())
	}

	var result ClearResult
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetConfigs retrieves the configuration documents extracted from the
// session's assistant turns
func (c *TestClient) GetConfigs(ctx context.Context, sessionID string) ([]ConfigDocument, error) {
	resp, err := c.Get(ctx, "/session/"+sessionID+"/configs")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get configs: %d - %s", resp.StatusCode, resp.String())
	}

	var docs []ConfigDocument
	if err := resp.JSON(&docs); err != nil {
		return nil, err
	}
	return docs, nil
}
