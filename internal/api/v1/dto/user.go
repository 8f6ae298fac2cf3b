package dto

import (
	"time"

	"github.com/HanabLabs/FocusDock/internal/model"
)

// UserProfileResponse is the authenticated user's profile.
type UserProfileResponse struct {
	UserID              string     `json:"user_id"`
	Email               string     `json:"email"`
	SubscriptionTier    string     `json:"subscription_tier"`
	GitHubConnected     bool       `json:"github_connected"`
	GitHubUsername      *string    `json:"github_username,omitempty"`
	SpotifyConnected    bool       `json:"spotify_connected"`
	GitHubLastSyncedAt  *time.Time `json:"github_last_synced_at,omitempty"`
	SpotifyLastSyncedAt *time.Time `json:"spotify_last_synced_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// NewUserProfileResponse maps a profile row to its API shape. Tokens and
// billing identifiers never leave the server.
func NewUserProfileResponse(u *model.UserProfile) UserProfileResponse {
	return UserProfileResponse{
		UserID:              u.UserID,
		Email:               u.Email,
		SubscriptionTier:    string(u.SubscriptionTier),
		GitHubConnected:     u.GitHubConnected,
		GitHubUsername:      u.GitHubUsername,
		SpotifyConnected:    u.SpotifyConnected,
		GitHubLastSyncedAt:  u.GitHubLastSyncedAt,
		SpotifyLastSyncedAt: u.SpotifyLastSyncedAt,
		CreatedAt:           u.CreatedAt,
	}
}
