package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/HanabLabs/FocusDock/internal/config"
	"github.com/HanabLabs/FocusDock/internal/database"
	"github.com/HanabLabs/FocusDock/internal/logger"
	"github.com/HanabLabs/FocusDock/internal/metrics"
	"github.com/HanabLabs/FocusDock/internal/pgmq"
	"github.com/HanabLabs/FocusDock/internal/provider/github"
	"github.com/HanabLabs/FocusDock/internal/provider/spotify"
	"github.com/HanabLabs/FocusDock/internal/repository"
	"github.com/HanabLabs/FocusDock/internal/service"
	"github.com/HanabLabs/FocusDock/internal/worker"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logger := logger.New()

	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg.DBConnectionString, cfg.Environment)
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB connection: %v", err)
	}
	defer pool.Close()
	logger.Info().Msg("Database connection established")

	queue := pgmq.New(pool)
	if err := queue.EnsureQueue(ctx, cfg.SyncQueueName); err != nil {
		logger.Fatal().Msgf("Failed to ensure sync queue: %v", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	httpClient := &http.Client{Timeout: time.Duration(cfg.SyncRequestTimeout) * time.Second}
	githubClient := github.NewClient(cfg.GitHubAPIBaseURL, cfg.GitHubOAuthBaseURL, cfg.GitHubClientID, cfg.GitHubClientSecret, httpClient)
	spotifyClient := spotify.NewClient(cfg.SpotifyAPIBaseURL, cfg.SpotifyAuthBaseURL, cfg.SpotifyClientID, cfg.SpotifyClientSecret, httpClient)

	userRepo := repository.NewUserRepo(pool)
	activityRepo := repository.NewActivityRepo(pool)
	vault := service.NewTokenVault(userRepo, githubClient, spotifyClient, logger)
	requestDelay := time.Duration(cfg.SyncRequestDelayMS) * time.Millisecond
	githubSync := service.NewGitHubSyncService(userRepo, activityRepo, vault, githubClient, cfg.SyncLookbackDays, requestDelay, logger)
	spotifySync := service.NewSpotifySyncService(userRepo, activityRepo, vault, spotifyClient, cfg.SyncLookbackDays, requestDelay, logger)

	// Scrape endpoint for the worker's own metrics
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))
		if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	w := worker.New(cfg, queue, githubSync, spotifySync, collector, logger)
	if err := w.Run(ctx); err != nil {
		logger.Fatal().Msgf("Sync worker failed: %v", err)
	}
	logger.Info().Msg("Sync worker stopped gracefully")
}
