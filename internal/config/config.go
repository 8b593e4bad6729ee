package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Remote service boundaries
	HistoryURL string // base URL of the conversation/message history API
	PushURL    string // websocket endpoint of the push transport
	AuthToken  string // bearer credential for both boundaries

	// Local identity
	UserID   int64
	UserName string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		Env:        getEnv("ENV", "development"),
		HistoryURL: os.Getenv("HISTORY_API_URL"),
		PushURL:    os.Getenv("PUSH_WS_URL"),
		AuthToken:  os.Getenv("AUTH_TOKEN"),
		UserName:   os.Getenv("USER_DISPLAY_NAME"),
	}

	if raw := os.Getenv("USER_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			panic("USER_ID must be an integer")
		}
		cfg.UserID = id
	}

	// In production, require the remote boundaries and identity
	if cfg.Env == "production" {
		if cfg.HistoryURL == "" {
			panic("HISTORY_API_URL is required in production")
		}
		if cfg.PushURL == "" {
			panic("PUSH_WS_URL is required in production")
		}
		if cfg.AuthToken == "" {
			panic("AUTH_TOKEN is required in production")
		}
		if cfg.UserID == 0 {
			panic("USER_ID is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
