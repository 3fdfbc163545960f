// Package config
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port    string
	GinMode string
	DevMode bool

	// Logging
	LogFile  string
	LogLevel string

	// Auth
	JWTSecret string

	// Crawler
	CrawlerEngine       string
	ChromePath          string
	CrawlTimeout        time.Duration
	RespectRobots       bool
	MaxConcurrentCrawls int64

	// LLM scorer
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAITimeout time.Duration

	// Limits
	RateLimitPerMinute int
	IPRate             float64
	IPBurst            int

	// Redis backs the per-user limiter when set
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Persistence
	DBDriver    string
	DatabaseURL string
	StatsDir    string

	// Crawl archive
	S3ServiceURL string
	S3AccessKey  string
	S3SecretKey  string
	S3Bucket     string

	SentryDSN    string
	OTLPEndpoint string
}

func Load() (Config, error) {
	cfg := Config{}
	var missingVars []string

	cfg.Port = getEnv("PORT", "8082")
	cfg.GinMode = getEnv("GIN_MODE", "release")
	cfg.DevMode = getEnv("DEV_MODE", "") == "true"

	cfg.LogFile = getEnv("LOG_FILE", "")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	if cfg.JWTSecret == "" && !cfg.DevMode {
		missingVars = append(missingVars, "JWT_SECRET")
	}
	if len(missingVars) > 0 {
		return cfg, fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}

	cfg.CrawlerEngine = getEnv("CRAWLER_ENGINE", "chromedp")
	cfg.ChromePath = getEnv("CHROME_PATH", "")
	cfg.CrawlTimeout = getDuration("CRAWL_TIMEOUT", 90*time.Second)
	cfg.RespectRobots = getEnv("RESPECT_ROBOTS", "true") != "false"

	var err error
	cfg.MaxConcurrentCrawls, err = strconv.ParseInt(getEnv("MAX_CONCURRENT_CRAWLS", "5"), 10, 64)
	if err != nil || cfg.MaxConcurrentCrawls < 1 {
		slog.Warn("Invalid MAX_CONCURRENT_CRAWLS", "value", getEnv("MAX_CONCURRENT_CRAWLS", "5"), "error", err)
		cfg.MaxConcurrentCrawls = 5
	}

	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", "")
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAITimeout = getDuration("OPENAI_TIMEOUT", 30*time.Second)

	cfg.RateLimitPerMinute = getInt("RATE_LIMIT_PER_MINUTE", 5)
	cfg.IPRate, err = strconv.ParseFloat(getEnv("IP_RATE", "2"), 64)
	if err != nil {
		slog.Warn("Invalid IP_RATE", "value", getEnv("IP_RATE", "2"), "error", err)
		cfg.IPRate = 2
	}
	cfg.IPBurst = getInt("IP_BURST", 5)

	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getInt("REDIS_DB", 0)

	cfg.DBDriver = getEnv("DB_DRIVER", "sqlite")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "data/seo.db")
	cfg.StatsDir = getEnv("STATS_DIR", "data")

	cfg.S3ServiceURL = getEnv("S3_SERVICE_URL", "")
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", "")
	cfg.S3Bucket = getEnv("S3_BUCKET_NAME", "")

	cfg.SentryDSN = getEnv("SENTRY_DSN", "")
	cfg.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer in environment", "key", key, "value", raw, "error", err)
		return defaultVal
	}
	return v
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in environment", "key", key, "value", raw, "error", err)
		return defaultVal
	}
	return v
}
