package router

import (
	"context"
	"net/http"
	"time"

	"github.com/HanabLabs/FocusDock/internal/api/v1/handler"
	"github.com/HanabLabs/FocusDock/internal/config"
	"github.com/HanabLabs/FocusDock/internal/database"
	"github.com/HanabLabs/FocusDock/internal/metrics"
	"github.com/HanabLabs/FocusDock/internal/middleware"
	"github.com/HanabLabs/FocusDock/internal/pgmq"
	"github.com/HanabLabs/FocusDock/internal/provider/github"
	"github.com/HanabLabs/FocusDock/internal/provider/spotify"
	"github.com/HanabLabs/FocusDock/internal/repository"
	"github.com/HanabLabs/FocusDock/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires the repositories, services, and handlers into the HTTP handler
// for the API server. The returned pool is owned by the caller.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, cfg.DBConnectionString, cfg.Environment)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("Database connection established")

	// Metrics registry and collector
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// Validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Provider clients
	httpClient := &http.Client{Timeout: time.Duration(cfg.SyncRequestTimeout) * time.Second}
	githubClient := github.NewClient(cfg.GitHubAPIBaseURL, cfg.GitHubOAuthBaseURL, cfg.GitHubClientID, cfg.GitHubClientSecret, httpClient)
	spotifyClient := spotify.NewClient(cfg.SpotifyAPIBaseURL, cfg.SpotifyAuthBaseURL, cfg.SpotifyClientID, cfg.SpotifyClientSecret, httpClient)

	// Queue for background sync jobs
	queue := pgmq.New(pool)
	if err := queue.EnsureQueue(ctx, cfg.SyncQueueName); err != nil {
		logger.Warn().Err(err).Str("queue", cfg.SyncQueueName).Msg("Failed to ensure sync queue; background sync may be unavailable")
	}

	// Repositories
	userRepo := repository.NewUserRepo(pool)
	activityRepo := repository.NewActivityRepo(pool)
	verificationRepo := repository.NewVerificationRepo(pool)
	webhookRepo := repository.NewWebhookEventRepo(pool)

	// Services
	authClient := service.NewSupabaseAuthClient(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)
	emailSvc := service.NewResendEmailService(cfg.ResendAPIBaseURL, cfg.ResendAPIKey, cfg.ResendFromEmail, logger)
	signupSvc := service.NewSignupService(verificationRepo, userRepo, authClient, emailSvc, cfg.EncryptionKey, cfg.SupabaseServiceRoleKey, logger)
	entitlementSvc := service.NewEntitlementService(userRepo, logger)
	stripeSvc := service.NewStripeService(cfg, userRepo, webhookRepo, entitlementSvc, collector, logger)
	vault := service.NewTokenVault(userRepo, githubClient, spotifyClient, logger)
	requestDelay := time.Duration(cfg.SyncRequestDelayMS) * time.Millisecond
	githubSync := service.NewGitHubSyncService(userRepo, activityRepo, vault, githubClient, cfg.SyncLookbackDays, requestDelay, logger)
	spotifySync := service.NewSpotifySyncService(userRepo, activityRepo, vault, spotifyClient, cfg.SyncLookbackDays, requestDelay, logger)
	integrationSvc := service.NewIntegrationService(userRepo, activityRepo, githubClient, spotifyClient, queue, cfg.SyncQueueName, cfg.AppBaseURL, logger)
	activitySvc := service.NewActivityService(activityRepo, logger)

	// Handlers
	authHandler := handler.NewAuthHandler(signupSvc, validate, logger)
	billingHandler := handler.NewBillingHandler(stripeSvc, validate, logger)
	integrationHandler := handler.NewIntegrationHandler(integrationSvc, githubSync, spotifySync, validate, logger)
	userHandler := handler.NewUserHandler(userRepo, activitySvc, validate, logger)

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)

	apiV1Mux := http.NewServeMux()
	authHandler.RegisterRoutes(apiV1Mux)
	billingHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	integrationHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	userHandler.RegisterRoutes(apiV1Mux, authMiddleware)

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))
	mux.Handle("/metrics", metrics.Handler(registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.AppBaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux)), pool, nil
}
