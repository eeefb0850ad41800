package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chatframe-ai/chatframe/internal/agent"
	"github.com/chatframe-ai/chatframe/internal/cache"
	"github.com/chatframe-ai/chatframe/internal/config"
	"github.com/chatframe-ai/chatframe/internal/logging"
	"github.com/chatframe-ai/chatframe/internal/server"
	"github.com/chatframe-ai/chatframe/internal/session"
)

var (
	servePort     int
	serveHostname string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatframe server",
	Long: `Start the chatframe server exposing the wizard's chat websocket, the
session REST API and the server-sent event feed.

Configuration comes from CHATFRAME_* environment variables (a .env file
in the working directory is loaded when present); flags override them.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", config.DefaultHost, "Hostname to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Missing .env is fine; the environment may carry everything already.
	_ = godotenv.Load()

	cfg := config.Load()
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	if cmd.Flags().Changed("hostname") {
		cfg.Host = serveHostname
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("pretty-logs") {
		cfg.LogPretty = prettyLogs
	}

	logging.Init(logging.Config{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Pretty:    cfg.LogPretty,
		LogToFile: cfg.LogToFile,
		LogDir:    cfg.LogDir,
	})
	defer logging.Close()

	logging.Info().Str("version", Version).Msg("starting chatframe server")

	ctx := context.Background()
	wizard, err := buildAgent(ctx, cfg)
	if err != nil {
		return err
	}

	store := session.NewStore(session.StoreConfig{
		Expiry:   cfg.SessionExpiry,
		Compress: cfg.Compress,
	})
	controller := session.NewController(store, session.NewRegistry(), wizard, session.BusSink{}, session.ControllerConfig{
		Supervisor: session.SupervisorConfig{
			PollInterval: cfg.PollInterval,
			Deadline:     cfg.GenerationTimeout,
		},
		Relay: session.RelayConfig{
			FlushInterval:  cfg.FlushInterval,
			FlushThreshold: cfg.FlushThreshold,
		},
	})

	serverConfig := server.DefaultConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port
	serverConfig.EnableCORS = cfg.CORS

	srv := server.New(serverConfig, store, controller, cache.New(cfg.CacheTTL))
	srv.SetAgentReady(true)

	// Start server in goroutine
	go func() {
		logging.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("server listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}

// buildAgent wires the ARK-backed wizard when credentials are configured and
// the scripted one otherwise, so the server stays usable without a model.
func buildAgent(ctx context.Context, cfg *config.Config) (agent.Agent, error) {
	if cfg.ArkAPIKey == "" {
		logging.Warn().Msg("ARK_API_KEY not set, using the scripted wizard")
		return agent.NewScriptedAgent(), nil
	}
	wizard, err := agent.NewArkAgent(ctx, &agent.ArkConfig{
		APIKey:  cfg.ArkAPIKey,
		Model:   cfg.ArkModel,
		BaseURL: cfg.ArkBaseURL,
	})
	if err != nil {
		return nil, err
	}
	logging.Info().Str("model", cfg.ArkModel).Msg("ARK wizard initialized")
	return wizard, nil
}
