package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Upstream collaborators
	MessagesURL     string
	ReportsURL      string
	UpstreamTimeout time.Duration // per-attempt HTTP timeout

	// Cache (optional; rate limiting is disabled when empty)
	RedisAddr string

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	RateLimitRPM int64 // requests per minute per client, default: 120
}

const (
	defaultMessagesURL = "https://owpublic.blob.core.windows.net/tech-task/messages/current-period"
	defaultReportsURL  = "https://owpublic.blob.core.windows.net/tech-task/reports"
)

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		MessagesURL:          getEnv("MESSAGES_URL", defaultMessagesURL),
		ReportsURL:           getEnv("REPORTS_URL", defaultReportsURL),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	timeoutStr := getEnv("UPSTREAM_TIMEOUT_SECONDS", "10")
	timeoutSecs, err := strconv.Atoi(timeoutStr)
	if err != nil || timeoutSecs <= 0 {
		return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT_SECONDS: %q", timeoutStr)
	}
	cfg.UpstreamTimeout = time.Duration(timeoutSecs) * time.Second

	rpmStr := getEnv("RATE_LIMIT_RPM", "120")
	rpm, err := strconv.ParseInt(rpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPM: %w", err)
	}
	cfg.RateLimitRPM = rpm

	// Validation
	if cfg.MessagesURL == "" {
		return nil, fmt.Errorf("MESSAGES_URL is required")
	}
	if cfg.ReportsURL == "" {
		return nil, fmt.Errorf("REPORTS_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
