package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/seo-maskinen/backend/analyzer"
	"github.com/seo-maskinen/backend/api"
	"github.com/seo-maskinen/backend/archive"
	"github.com/seo-maskinen/backend/breaker"
	"github.com/seo-maskinen/backend/config"
	"github.com/seo-maskinen/backend/crawler"
	"github.com/seo-maskinen/backend/llm"
	"github.com/seo-maskinen/backend/logging"
	"github.com/seo-maskinen/backend/middleware"
	"github.com/seo-maskinen/backend/ratelimit"
	"github.com/seo-maskinen/backend/service"
	"github.com/seo-maskinen/backend/stats"
	"github.com/seo-maskinen/backend/store"
	"github.com/seo-maskinen/backend/tracing"
)

const (
	serviceName     = "seo-backend"
	statsRetention  = 12
	maintenanceTick = 10 * time.Minute
)

func loadEnv() {
	// .env.development wins for local development
	if err := godotenv.Load(".env.development"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found, using environment variables")
		}
	}
}

func main() {
	loadEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	logger, logCloser, err := logging.Setup(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Service: serviceName,
	}, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.GinMode}); err != nil {
			logger.Warn("Sentry disabled", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		logger.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}

	if cfg.DBDriver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabaseURL), 0755); err != nil {
			logger.Error("Failed to create database directory", "error", err)
			os.Exit(1)
		}
	}
	db, err := store.Open(cfg.DBDriver, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("Failed to open database", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}

	usage, err := stats.NewStorage(cfg.StatsDir, logger)
	if err != nil {
		logger.Error("Failed to initialize statistics", "error", err)
		os.Exit(1)
	}

	httpClient := tracing.HTTPClient(&http.Client{Timeout: cfg.CrawlTimeout})

	crawlArchive, err := archive.New(ctx, archive.Config{
		ServiceURL: cfg.S3ServiceURL,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		Bucket:     cfg.S3Bucket,
		HTTPClient: tracing.HTTPClient(nil),
	})
	if err != nil {
		logger.Error("Failed to configure crawl archive", "error", err)
		os.Exit(1)
	}

	userLimiter, memLimiter := newUserLimiter(cfg, logger)
	breakers := breaker.NewRegistry(breaker.Settings{Ignore: service.IsCallerError}, logger)

	var browser crawler.Browser
	switch cfg.CrawlerEngine {
	case "static":
		browser = crawler.NewStaticBrowser(httpClient)
	default:
		browser = crawler.NewChromeBrowser(cfg.ChromePath)
	}
	crawlOpts := crawler.DefaultOptions()
	crawlOpts.Timeout = cfg.CrawlTimeout
	crawlOpts.RespectRobots = cfg.RespectRobots

	deps := service.Dependencies{
		Crawler:   crawler.New(browser, httpClient, crawlOpts, cfg.MaxConcurrentCrawls, logger),
		Heuristic: analyzer.New(),
		LLM: llm.NewScorer(llm.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			Timeout:    cfg.OpenAITimeout,
			HTTPClient: tracing.HTTPClient(nil),
			Logger:     logger,
		}),
		Breakers: breakers,
		Store:    db,
		Stats:    usage,
	}
	if crawlArchive.Enabled() {
		deps.Archive = crawlArchive
	}

	ipLimiter := middleware.NewRateLimiter(cfg.IPRate, cfg.IPBurst)

	auth := middleware.JWTRequired(cfg.JWTSecret)
	if cfg.DevMode && cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, accepting X-User-ID in development mode")
		auth = middleware.DevAuth()
	}

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RequestID(logger))
	r.Use(middleware.CORS())
	r.Use(ipLimiter.RateLimit())
	r.Use(middleware.StatsMiddleware(usage))

	handlers := &api.Handlers{
		Analyzer:        service.New(deps),
		Store:           db,
		Stats:           usage,
		Breakers:        breakers,
		Auth:            auth,
		Quota:           middleware.UserQuota(userLimiter),
		DevMode:         cfg.DevMode,
		AnalysisTimeout: cfg.CrawlTimeout + cfg.OpenAITimeout*3,
	}
	handlers.Register(r)

	go maintenance(ctx, logger, ipLimiter, memLimiter, usage)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "addr", "http://localhost:"+cfg.Port, "engine", cfg.CrawlerEngine,
			"llm_enabled", cfg.OpenAIAPIKey != "", "archive_enabled", crawlArchive.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := usage.Close(); err != nil {
		logger.Error("Failed to flush statistics", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Failed to flush traces", "error", err)
	}
	logger.Info("Server exited")
}

// newUserLimiter picks Redis when configured so limits hold across
// instances. The in-memory limiter is also returned for sweeping.
func newUserLimiter(cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, *ratelimit.Memory) {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		logger.Info("Using Redis rate limiter", "addr", cfg.RedisAddr)
		return ratelimit.NewRedis(client, cfg.RateLimitPerMinute, ratelimit.DefaultWindow), nil
	}
	mem := ratelimit.NewMemory(cfg.RateLimitPerMinute, ratelimit.DefaultWindow)
	return mem, mem
}

func maintenance(ctx context.Context, logger *slog.Logger, ip *middleware.RateLimiter, mem *ratelimit.Memory, usage *stats.Storage) {
	ticker := time.NewTicker(maintenanceTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			visitors := ip.Cleanup(30 * time.Minute)
			windows := 0
			if mem != nil {
				windows = mem.Sweep()
			}
			usage.Cleanup(statsRetention)
			logger.Debug("Maintenance done", "visitors_removed", visitors, "windows_removed", windows)
		}
	}
}
