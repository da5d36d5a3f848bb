package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
)

const (
	HistoryBackendPostgres = "postgres"
	HistoryBackendRedis    = "redis"
)

type Config struct {
	DatabaseURL string
	LogLevel    string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleTokenURL     string

	WebhookURL     string
	WebhookTimeout int // seconds

	SweepInterval            int // seconds
	ScanLookback             int // seconds
	ScanMaxResults           int
	MaxConcurrentAttachments int

	HistoryBackend string
	HistoryLimit   int
	RedisURL       string

	DriveUploadEnabled bool

	SendGridAPIKey  string
	NotifyFromEmail string
	FrontendURL     string

	RateCacheHours  int
	ShutdownTimeout int // seconds
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		DatabaseURL:              dbURL,
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		GoogleClientID:           os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:       os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:        getEnv("GOOGLE_REDIRECT_URL", "http://localhost:3001/auth/callback"),
		GoogleTokenURL:           getEnv("GOOGLE_TOKEN_URL", google.Endpoint.TokenURL),
		WebhookURL:               os.Getenv("WEBHOOK_URL"),
		WebhookTimeout:           getEnvInt("WEBHOOK_TIMEOUT_SECONDS", 60),
		SweepInterval:            getEnvInt("SWEEP_INTERVAL_SECONDS", 300),
		ScanLookback:             getEnvInt("SCAN_LOOKBACK_SECONDS", 86400),
		ScanMaxResults:           getEnvInt("SCAN_MAX_RESULTS", 100),
		MaxConcurrentAttachments: getEnvInt("MAX_CONCURRENT_ATTACHMENTS", 5),
		HistoryBackend:           strings.ToLower(getEnv("HISTORY_BACKEND", HistoryBackendPostgres)),
		HistoryLimit:             getEnvInt("HISTORY_LIMIT", 2000),
		RedisURL:                 os.Getenv("REDIS_URL"),
		DriveUploadEnabled:       getEnvBool("DRIVE_UPLOAD_ENABLED", true),
		SendGridAPIKey:           os.Getenv("SENDGRID_API_KEY"),
		NotifyFromEmail:          getEnv("NOTIFY_FROM_EMAIL", "noreply@invy.app"),
		FrontendURL:              getEnv("FRONTEND_URL", "http://localhost:3000"),
		RateCacheHours:           getEnvInt("RATE_CACHE_HOURS", 24),
		ShutdownTimeout:          getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30),
	}

	switch cfg.HistoryBackend {
	case HistoryBackendPostgres:
	case HistoryBackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when HISTORY_BACKEND is redis")
		}
	default:
		return nil, fmt.Errorf("unknown HISTORY_BACKEND %q", cfg.HistoryBackend)
	}

	// A message left unmarked by one sweep must still match the next sweep's query
	if minLookback := 2 * cfg.SweepInterval; cfg.ScanLookback < minLookback {
		log.Warnf("SCAN_LOOKBACK_SECONDS=%d is shorter than two sweep intervals, using %d", cfg.ScanLookback, minLookback)
		cfg.ScanLookback = minLookback
	}

	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		log.Warn("GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, token refresh will not work")
	}
	if cfg.WebhookURL == "" {
		log.Warn("WEBHOOK_URL not set, attachments will not be forwarded for extraction")
	}

	return cfg, nil
}

func (c *Config) SweepEvery() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

func (c *Config) LookbackWindow() time.Duration {
	return time.Duration(c.ScanLookback) * time.Second
}

// SetupLogger configures the global logrus logger
func (c *Config) SetupLogger() {
	log.SetFormatter(&log.JSONFormatter{})
	level, err := log.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as a positive integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
