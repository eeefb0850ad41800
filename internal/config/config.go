// Package config loads runtime configuration from environment variables
// with typed parse helpers and defaults that match the package constants
// they feed. The serve command autoloads a .env file before calling Load,
// so local development needs no exported shell state. Flags on the serve
// command override whatever Load produced.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/chatframe-ai/chatframe/internal/cache"
	"github.com/chatframe-ai/chatframe/internal/logging"
	"github.com/chatframe-ai/chatframe/internal/session"
)

// Server listen defaults.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8080
)

// Config carries every tunable of the chatframe server.
type Config struct {
	Host string
	Port int
	CORS bool

	SessionExpiry     time.Duration
	Compress          bool
	GenerationTimeout time.Duration
	PollInterval      time.Duration
	FlushInterval     time.Duration
	FlushThreshold    int
	CacheTTL          time.Duration

	LogLevel  string
	LogPretty bool
	LogToFile bool
	LogDir    string

	ArkAPIKey  string
	ArkModel   string
	ArkBaseURL string
}

// Load reads the CHATFRAME_* and ARK_* environment variables. Malformed
// values fall back to their defaults with a warning rather than failing
// startup.
func Load() *Config {
	return &Config{
		Host: getString("CHATFRAME_HOST", DefaultHost),
		Port: getInt("CHATFRAME_PORT", DefaultPort),
		CORS: getBool("CHATFRAME_CORS", true),

		SessionExpiry:     getDuration("CHATFRAME_SESSION_EXPIRY", session.DefaultExpiry),
		Compress:          getBool("CHATFRAME_COMPRESS", false),
		GenerationTimeout: getDuration("CHATFRAME_GENERATION_TIMEOUT", session.DefaultDeadline),
		PollInterval:      getDuration("CHATFRAME_POLL_INTERVAL", session.DefaultPollInterval),
		FlushInterval:     getDuration("CHATFRAME_FLUSH_INTERVAL", session.DefaultFlushInterval),
		FlushThreshold:    getInt("CHATFRAME_FLUSH_THRESHOLD", session.DefaultFlushThreshold),
		CacheTTL:          getDuration("CHATFRAME_CACHE_TTL", cache.DefaultTTL),

		LogLevel:  getString("CHATFRAME_LOG_LEVEL", "info"),
		LogPretty: getBool("CHATFRAME_LOG_PRETTY", false),
		LogToFile: getBool("CHATFRAME_LOG_TO_FILE", false),
		LogDir:    getString("CHATFRAME_LOG_DIR", "logs"),

		ArkAPIKey:  os.Getenv("ARK_API_KEY"),
		ArkModel:   os.Getenv("ARK_MODEL"),
		ArkBaseURL: os.Getenv("ARK_BASE_URL"),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logging.Warn().Str("key", key).Str("value", v).Msg("invalid integer, using default")
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logging.Warn().Str("key", key).Str("value", v).Msg("invalid boolean, using default")
		return fallback
	}
	return b
}

// getDuration accepts Go duration strings ("90s", "5m") and bare integers,
// which are read as seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	logging.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
	return fallback
}
