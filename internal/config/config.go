// Package config reads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"bdemetris/devicehub/internal/inventory"
	"bdemetris/devicehub/pkg/apiclient"
	"bdemetris/devicehub/pkg/store"
)

const (
	SessionBackendFile  = "file"
	SessionBackendRedis = "redis"
)

// Config holds every setting the binaries read.
type Config struct {
	APIBaseURL string
	APITimeout time.Duration
	ListenAddr string

	Store store.StoreConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	SessionBackend string
	SessionFile    string
	SessionTTL     time.Duration

	SlackAppToken string
	SlackBotToken string

	FallbackMode      inventory.FallbackMode
	OverdueAfter      time.Duration
	OverdueCheckEvery time.Duration

	LogLevel slog.Level
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}
	cfg := Config{
		APIBaseURL: r.str("API_BASE_URL", apiclient.DefaultBaseURL),
		APITimeout: r.duration("API_TIMEOUT", 10*time.Second),
		ListenAddr: r.str("LISTEN_ADDR", ":5000"),
		Store: store.StoreConfig{
			Provider:         r.str("STORE_PROVIDER", store.ProviderMemory),
			DynamoDBEndpoint: r.str("DYNAMODB_ENDPOINT", ""),
			PostgresDSN:      r.str("POSTGRES_DSN", ""),
		},
		RedisAddr:         r.str("REDIS_ADDR", ""),
		RedisPassword:     r.str("REDIS_PASSWORD", ""),
		RedisDB:           r.integer("REDIS_DB", 0),
		CacheTTL:          r.duration("CACHE_TTL", 30*time.Second),
		SessionBackend:    r.str("SESSION_BACKEND", SessionBackendFile),
		SessionFile:       r.str("SESSION_FILE", ""),
		SessionTTL:        r.duration("SESSION_TTL", 0),
		SlackAppToken:     r.str("SLACK_APP_TOKEN", ""),
		SlackBotToken:     r.str("SLACK_BOT_TOKEN", ""),
		OverdueAfter:      r.duration("OVERDUE_AFTER", 30*24*time.Hour),
		OverdueCheckEvery: r.duration("OVERDUE_CHECK_EVERY", time.Hour),
	}

	mode, err := inventory.ParseFallbackMode(r.str("FALLBACK_MODE", ""))
	if err != nil {
		r.errs = append(r.errs, err)
	}
	cfg.FallbackMode = mode

	if err := cfg.LogLevel.UnmarshalText([]byte(r.str("LOG_LEVEL", "info"))); err != nil {
		r.errs = append(r.errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	switch cfg.Store.Provider {
	case store.ProviderMemory, store.ProviderDynamoDB:
	case store.ProviderPostgres:
		if cfg.Store.PostgresDSN == "" {
			r.errs = append(r.errs, errors.New("POSTGRES_DSN is required for the postgres provider"))
		}
	default:
		r.errs = append(r.errs, fmt.Errorf("STORE_PROVIDER: unsupported provider %q", cfg.Store.Provider))
	}

	switch cfg.SessionBackend {
	case SessionBackendFile:
	case SessionBackendRedis:
		if cfg.RedisAddr == "" {
			r.errs = append(r.errs, errors.New("REDIS_ADDR is required for the redis session backend"))
		}
	default:
		r.errs = append(r.errs, fmt.Errorf("SESSION_BACKEND: unsupported backend %q", cfg.SessionBackend))
	}

	return cfg, errors.Join(r.errs...)
}

// ValidateSlack checks the socket-mode tokens.
func (c Config) ValidateSlack() error {
	if !strings.HasPrefix(c.SlackAppToken, "xapp-") || !strings.HasPrefix(c.SlackBotToken, "xoxb-") {
		return errors.New("SLACK_APP_TOKEN (xapp-...) and SLACK_BOT_TOKEN (xoxb-...) environment variables are required")
	}
	return nil
}

// RedisClient returns a client for REDIS_ADDR, or nil when it is unset.
func (c Config) RedisClient() *redis.Client {
	if c.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
}

// NewLogger returns a text logger at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// StdLogger bridges logger into the *log.Logger the Slack SDK expects.
func StdLogger(logger *slog.Logger, component string) *log.Logger {
	return slog.NewLogLogger(logger.With("component", component).Handler(), slog.LevelInfo)
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}
