package config

import (
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Fyers credentials
	FyersAppID      string
	FyersSecret     string
	FyersRedirect   string
	FyersID         string
	FyersTOTPSecret string
	FyersPIN        string

	// Infrastructure
	RedisAddr     string // empty disables Redis publishing
	RedisPassword string
	SQLitePath    string
	StatePath     string

	// Alerting (all optional)
	NotifyWebhookURL string
	TelegramBotToken string
	TelegramChatID   string

	// HTTP
	HTTPAddr    string
	MetricsAddr string

	LogLevel slog.Level
}

// Load reads configuration from the environment, after sourcing a .env file
// if present. Missing required credentials are fatal.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env load: %v", err)
	}

	return &Config{
		FyersAppID:      mustEnv("FYERS_APP_ID"),
		FyersSecret:     mustEnv("FYERS_SECRET_ID"),
		FyersRedirect:   getEnv("FYERS_REDIRECT_URI", "http://localhost:8080/api/callback"),
		FyersID:         getEnv("FYERS_ID", ""),
		FyersTOTPSecret: getEnv("FYERS_TOTP_SECRET", ""),
		FyersPIN:        getEnv("FYERS_PIN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/orders.db"),
		StatePath:     getEnv("STATE_PATH", "data/session.json"),

		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),
	}
}

// AutoLoginConfigured reports whether the headless TOTP login flow can run.
func (c *Config) AutoLoginConfigured() bool {
	return c.FyersID != "" && c.FyersTOTPSecret != "" && c.FyersPIN != ""
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
