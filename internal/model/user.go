package model

import "time"

// SubscriptionTier is the user's entitlement level. Lifetime is a sticky
// maximum: once set it is never downgraded by monthly-subscription events.
type SubscriptionTier string

const (
	TierFree     SubscriptionTier = "free"
	TierMonthly  SubscriptionTier = "monthly"
	TierLifetime SubscriptionTier = "lifetime"
)

// UserProfile represents a user account profile in the system
type UserProfile struct {
	UserID           string           `db:"id" json:"user_id"`
	Email            string           `db:"email" json:"email"`
	SubscriptionTier SubscriptionTier `db:"subscription_tier" json:"subscription_tier"`
	StripeCustomerID *string          `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`

	GitHubConnected   bool    `db:"github_connected" json:"github_connected"`
	GitHubUsername    *string `db:"github_username" json:"github_username,omitempty"`
	GitHubAccessToken *string `db:"github_access_token" json:"-"`

	SpotifyConnected    bool    `db:"spotify_connected" json:"spotify_connected"`
	SpotifyAccessToken  *string `db:"spotify_access_token" json:"-"`
	SpotifyRefreshToken *string `db:"spotify_refresh_token" json:"-"`

	GitHubLastSyncedAt  *time.Time `db:"github_last_synced_at" json:"github_last_synced_at,omitempty"`
	SpotifyLastSyncedAt *time.Time `db:"spotify_last_synced_at" json:"spotify_last_synced_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
