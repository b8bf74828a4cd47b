package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the server.
type Config struct {
	Addr      string
	Env       string
	DBDSN     string
	RedisAddr string
	JWTSecret string

	// Websocket limits
	MaxFrameSize int64

	// Message rate limiting (token bucket per user)
	MessageBurst  int
	MessageWindow time.Duration

	// Auth attempt window (per IP)
	AuthMaxFailures int
	AuthWindow      time.Duration

	// Offline delivery
	DeliveryTick time.Duration

	// Content validation policy: when true, only ASCII control characters
	// are rejected instead of the full Unicode control category.
	ASCIIControlOnly bool
}

// Load reads configuration from the environment, with .env support for
// development. DB_DSN and JWT_SECRET have no defaults and are validated by
// the caller.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:             getEnv("ADDR", ":8080"),
		Env:              getEnv("ENV", "development"),
		DBDSN:            os.Getenv("DB_DSN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		MaxFrameSize:     getEnvInt64("MAX_FRAME_SIZE", 10*1024),
		MessageBurst:     getEnvInt("MESSAGE_RATE_BURST", 100),
		MessageWindow:    getEnvDuration("MESSAGE_RATE_WINDOW", 60*time.Second),
		AuthMaxFailures:  getEnvInt("AUTH_MAX_FAILURES", 5),
		AuthWindow:       getEnvDuration("AUTH_WINDOW", 900*time.Second),
		DeliveryTick:     getEnvDuration("DELIVERY_TICK", 500*time.Millisecond),
		ASCIIControlOnly: strings.EqualFold(getEnv("CONTENT_ASCII_CONTROL_ONLY", "false"), "true"),
	}
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
