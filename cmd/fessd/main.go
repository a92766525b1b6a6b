package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpHandlers "github.com/VanZoel112/vzoelfess/internal/adapters/http/handlers"
	httpMiddleware "github.com/VanZoel112/vzoelfess/internal/adapters/http/middleware"
	"github.com/VanZoel112/vzoelfess/internal/adapters/publish"
	redisstorage "github.com/VanZoel112/vzoelfess/internal/adapters/storage/redis"
	"github.com/VanZoel112/vzoelfess/internal/adapters/storage/sqlite"
	"github.com/VanZoel112/vzoelfess/internal/config"
	"github.com/VanZoel112/vzoelfess/internal/core/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := sqlite.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close database", "err", err)
		}
	}()

	redisStore, err := redisstorage.New(redisstorage.Config{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		if err := redisStore.Close(); err != nil {
			logger.Warn("close redis", "err", err)
		}
	}()

	counters, err := services.NewFailoverCounterStore(redisStore, store, services.FailoverConfig{
		FailureThreshold: cfg.Failover.FailureThreshold,
		RetryAfter:       cfg.Failover.RetryAfter,
		ProbeTimeout:     cfg.Failover.ProbeTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("init failover store: %w", err)
	}

	limiter, err := services.NewRateLimiterService(counters, cfg.RateLimit.Limits, logger)
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}

	publisher, err := publish.NewWebhookPublisher(cfg.Publish.WebhookURL, logger)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}

	submissions, err := services.NewSubmissionService(store, limiter, store, store, cfg.RateLimit.Limits, logger)
	if err != nil {
		return fmt.Errorf("init submission service: %w", err)
	}

	moderation, err := services.NewModerationService(store, store, store, publisher, services.ModerationConfig{
		PublishAttempts: cfg.Publish.Attempts,
		PublishBackoff:  cfg.Publish.Backoff,
	}, logger)
	if err != nil {
		return fmt.Errorf("init moderation service: %w", err)
	}

	submissionHandler := httpHandlers.NewSubmissionHandler(submissions)
	adminHandler := httpHandlers.NewAdminHandler(moderation)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(httpMiddleware.NewFloodLimiter(cfg.Flood.RequestsPerSecond))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/submissions", submissionHandler.Submit)
	r.Get("/senders/{sender}/status", submissionHandler.Status)
	r.Get("/hashtags/top", adminHandler.TopHashtags)

	r.Route("/admin", func(r chi.Router) {
		r.Use(httpMiddleware.RequireAdminToken(cfg.Admin.Token))
		r.Get("/menfess/pending", adminHandler.Pending)
		r.Post("/menfess/{id}/approve", adminHandler.Approve)
		r.Post("/menfess/{id}/reject", adminHandler.Reject)
		r.Post("/menfess/{id}/publish", adminHandler.RetryPublish)
		r.Put("/bans/{sender}", adminHandler.Ban)
		r.Delete("/bans/{sender}", adminHandler.Unban)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "err", err)
	}
	return nil
}
