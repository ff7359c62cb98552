package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/usage-meter/config"
	"github.com/vnmchuo/usage-meter/internal/logging"
	"github.com/vnmchuo/usage-meter/internal/report"
	"github.com/vnmchuo/usage-meter/internal/server"
	"github.com/vnmchuo/usage-meter/internal/telemetry"
	"github.com/vnmchuo/usage-meter/internal/upstream"
	"github.com/vnmchuo/usage-meter/internal/usage"
	"github.com/vnmchuo/usage-meter/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init logging
	logger := logging.Setup(slog.LevelInfo)

	// 3. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("usage-meter", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	// 4. Connect Redis (optional; enables rate limiting)
	ctx := context.Background()
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to ping redis: %v", err)
		}
		limiter = ratelimit.NewLimiter(rdb, cfg.RateLimitRPM)
		logger.Info("redis connected, rate limiting enabled", "rpm", cfg.RateLimitRPM)
	} else {
		logger.Info("REDIS_ADDR not set, rate limiting disabled")
	}

	// 5. Init upstream clients
	source := upstream.NewMessageSource(cfg.MessagesURL, cfg.UpstreamTimeout)
	reportClient := upstream.NewReportClient(cfg.ReportsURL, cfg.UpstreamTimeout, logger)

	// 6. Init report cache + aggregator
	cache := report.NewCache(reportClient, report.DefaultCacheCapacity)
	aggregator := usage.NewAggregator(cache, logger)

	// 7. Init handler
	tracer := otel.GetTracerProvider().Tracer("usage-meter")
	handler := server.NewHandler(source, aggregator, limiter, tracer, logger)

	// 8. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"usage-meter"}`))
	})
	r.Get("/usage", handler.HandleUsage)

	// 9. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("usage meter starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	logger.Info("server stopped")
}
