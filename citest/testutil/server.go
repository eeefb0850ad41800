package testutil

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/chatframe-ai/chatframe/internal/agent"
	"github.com/chatframe-ai/chatframe/internal/cache"
	"github.com/chatframe-ai/chatframe/internal/server"
	"github.com/chatframe-ai/chatframe/internal/session"
)

// TestServer wraps a running chatframe server for integration tests.
type TestServer struct {
	Server  *server.Server
	BaseURL string
	Store   *session.Store
	port    int
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	agent      agent.Agent
	supervisor session.SupervisorConfig
	relay      session.RelayConfig
}

// WithAgent substitutes the wizard the server answers with.
func WithAgent(a agent.Agent) TestServerOption {
	return func(c *testServerConfig) {
		c.agent = a
	}
}

// WithSupervisor overrides the generation supervisor tuning.
func WithSupervisor(cfg session.SupervisorConfig) TestServerOption {
	return func(c *testServerConfig) {
		c.supervisor = cfg
	}
}

// WithRelay overrides the stream relay tuning.
func WithRelay(cfg session.RelayConfig) TestServerOption {
	return func(c *testServerConfig) {
		c.relay = cfg
	}
}

// StartTestServer creates and starts a test server on a free port. The wizard
// defaults to the scripted agent so no model credentials are required.
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{agent: agent.NewScriptedAgent()}
	for _, opt := range opts {
		opt(cfg)
	}

	// Find available port
	port, err := findAvailablePort()
	if err != nil {
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	store := session.NewStore(session.StoreConfig{})
	controller := session.NewController(store, session.NewRegistry(), cfg.agent, session.BusSink{}, session.ControllerConfig{
		Supervisor: cfg.supervisor,
		Relay:      cfg.relay,
	})

	serverConfig := server.DefaultConfig()
	serverConfig.Port = port

	srv := server.New(serverConfig, store, controller, cache.New(time.Hour))
	srv.SetAgentReady(true)

	// Start server in background
	go func() {
		_ = srv.Start()
	}()

	// Wait for server to be ready
	baseURL := fmt.Sprintf("http://localhost:%d", port)
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		srv.Shutdown(context.Background())
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return &TestServer{
		Server:  srv,
		BaseURL: baseURL,
		Store:   store,
		port:    port,
	}, nil
}

// Stop shuts down the test server
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ts.Server != nil {
		return ts.Server.Shutdown(ctx)
	}
	return nil
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/health")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
