package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`

	// Supabase auth settings
	SupabaseURL            string `envconfig:"SUPABASE_URL" required:"true"`
	SupabaseServiceRoleKey string `envconfig:"SUPABASE_SERVICE_ROLE_KEY" required:"true"`
	JWTSecret              string `envconfig:"SUPABASE_JWT_SECRET" required:"true"`

	// Dedicated secret for verification-code password encryption (64 hex chars).
	// Falls back to a hash of the service role key when unset.
	EncryptionKey string `envconfig:"ENCRYPTION_KEY"`

	// Stripe settings
	StripeSecretKey      string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret  string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	StripeMonthlyPriceID string `envconfig:"STRIPE_MONTHLY_PRICE_ID" required:"true"`

	// OAuth provider settings
	GitHubClientID      string `envconfig:"GITHUB_CLIENT_ID" required:"true"`
	GitHubClientSecret  string `envconfig:"GITHUB_CLIENT_SECRET" required:"true"`
	SpotifyClientID     string `envconfig:"SPOTIFY_CLIENT_ID" required:"true"`
	SpotifyClientSecret string `envconfig:"SPOTIFY_CLIENT_SECRET" required:"true"`
	AppBaseURL          string `envconfig:"APP_BASE_URL" default:"http://localhost:3000"`

	// Resend email settings
	ResendAPIKey    string `envconfig:"RESEND_API_KEY"`
	ResendFromEmail string `envconfig:"RESEND_FROM_EMAIL" default:"FocusDock <noreply@hanablabs.info>"`

	// Activity sync settings
	SyncQueueName      string `envconfig:"SYNC_QUEUE_NAME" default:"activity_sync"`
	SyncPollTimeoutSec int    `envconfig:"SYNC_POLL_TIMEOUT_SEC" default:"30"`
	SyncPollMaxMsg     int    `envconfig:"SYNC_POLL_MAX_MSG" default:"1"`
	SyncLookbackDays   int    `envconfig:"SYNC_LOOKBACK_DAYS" default:"50"`
	SyncRequestDelayMS int    `envconfig:"SYNC_REQUEST_DELAY_MS" default:"100"`
	SyncRequestTimeout int    `envconfig:"SYNC_REQUEST_TIMEOUT_SEC" default:"30"`

	// Provider endpoints (overridable for local testing)
	GitHubAPIBaseURL   string `envconfig:"GITHUB_API_BASE_URL" default:"https://api.github.com"`
	GitHubOAuthBaseURL string `envconfig:"GITHUB_OAUTH_BASE_URL" default:"https://github.com"`
	SpotifyAPIBaseURL  string `envconfig:"SPOTIFY_API_BASE_URL" default:"https://api.spotify.com"`
	SpotifyAuthBaseURL string `envconfig:"SPOTIFY_AUTH_BASE_URL" default:"https://accounts.spotify.com"`
	ResendAPIBaseURL   string `envconfig:"RESEND_API_BASE_URL" default:"https://api.resend.com"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
