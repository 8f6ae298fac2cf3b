package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/HanabLabs/FocusDock/internal/provider/github"
	"github.com/HanabLabs/FocusDock/internal/provider/spotify"
	"github.com/HanabLabs/FocusDock/internal/repository"

	"github.com/rs/zerolog"
)

// ErrTokenRefresh means the stored credentials for a provider are dead and
// cannot be refreshed. The caller must surface this as "provider
// disconnected" and must not retry with the stale token.
var ErrTokenRefresh = errors.New("provider token refresh failed")

// githubProber is the subset of the GitHub client the vault uses.
type githubProber interface {
	GetUser(ctx context.Context, accessToken string) (*github.User, error)
}

// spotifyTokenClient is the subset of the Spotify client the vault uses.
type spotifyTokenClient interface {
	GetMe(ctx context.Context, accessToken string) error
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
}

// TokenVault returns provider access tokens guaranteed usable for the next
// API call, refreshing and persisting them when the stored token has
// expired. Exactly one persistence write happens per successful refresh;
// successful probes cause no write.
type TokenVault struct {
	userRepo repository.UserRepository
	github   githubProber
	spotify  spotifyTokenClient
	logger   zerolog.Logger
}

// NewTokenVault creates a TokenVault with a scoped logger.
func NewTokenVault(userRepo repository.UserRepository, gh githubProber, sp spotifyTokenClient, logger zerolog.Logger) *TokenVault {
	return &TokenVault{
		userRepo: userRepo,
		github:   gh,
		spotify:  sp,
		logger:   logger.With().Str("service", "TokenVault").Logger(),
	}
}

// ValidGitHubToken probes the stored GitHub token. GitHub OAuth app tokens
// carry no refresh grant, so a rejected token is terminal.
func (v *TokenVault) ValidGitHubToken(ctx context.Context, userID, accessToken string) (string, error) {
	if _, err := v.github.GetUser(ctx, accessToken); err != nil {
		if errors.Is(err, github.ErrUnauthorized) {
			v.logger.Warn().Str("user_id", userID).Msg("GitHub token rejected; user must reconnect")
			return "", ErrTokenRefresh
		}
		return "", fmt.Errorf("github token probe: %w", err)
	}
	return accessToken, nil
}

// ValidSpotifyToken probes the stored Spotify token and, when it has
// expired, exchanges the refresh token for a new one and persists it
// against the user record before returning.
func (v *TokenVault) ValidSpotifyToken(ctx context.Context, userID, accessToken, refreshToken string) (string, error) {
	err := v.spotify.GetMe(ctx, accessToken)
	if err == nil {
		return accessToken, nil
	}
	if !errors.Is(err, spotify.ErrUnauthorized) {
		return "", fmt.Errorf("spotify token probe: %w", err)
	}

	newToken, err := v.spotify.RefreshToken(ctx, refreshToken)
	if err != nil {
		v.logger.Warn().Err(err).Str("user_id", userID).Msg("Spotify refresh token rejected; user must reconnect")
		return "", ErrTokenRefresh
	}
	if err := v.userRepo.UpdateSpotifyAccessToken(ctx, userID, newToken); err != nil {
		return "", fmt.Errorf("persist refreshed spotify token: %w", err)
	}
	v.logger.Info().Str("user_id", userID).Msg("Refreshed Spotify access token")
	return newToken, nil
}
