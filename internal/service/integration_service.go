package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HanabLabs/FocusDock/internal/model"
	"github.com/HanabLabs/FocusDock/internal/pgmq"
	"github.com/HanabLabs/FocusDock/internal/provider/github"
	"github.com/HanabLabs/FocusDock/internal/provider/spotify"
	"github.com/HanabLabs/FocusDock/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrPaidTierRequired means the integration is gated to paying users.
var ErrPaidTierRequired = errors.New("paid subscription required")

// SyncJob is the payload enqueued for the background sync worker.
type SyncJob struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
}

// githubOAuthClient is the subset of the GitHub client the integration
// lifecycle uses.
type githubOAuthClient interface {
	AuthURL(redirectURI, state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	GetUser(ctx context.Context, accessToken string) (*github.User, error)
}

// spotifyOAuthClient is the subset of the Spotify client the integration
// lifecycle uses.
type spotifyOAuthClient interface {
	AuthURL(redirectURI, state string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*spotify.TokenPair, error)
}

// IntegrationService manages the OAuth lifecycle of the GitHub and Spotify
// connections: authorize URL, code exchange, token storage, and teardown.
// A successful connect enqueues a background sync so fresh data appears
// without waiting for the next manual sync.
type IntegrationService struct {
	userRepo     repository.UserRepository
	activityRepo repository.ActivityRepository
	githubClient githubOAuthClient
	spotifyCl    spotifyOAuthClient
	queue        *pgmq.Client
	queueName    string
	appBaseURL   string
	logger       zerolog.Logger
}

// NewIntegrationService creates an IntegrationService.
func NewIntegrationService(
	userRepo repository.UserRepository,
	activityRepo repository.ActivityRepository,
	githubClient githubOAuthClient,
	spotifyClient spotifyOAuthClient,
	queue *pgmq.Client,
	queueName, appBaseURL string,
	logger zerolog.Logger,
) *IntegrationService {
	return &IntegrationService{
		userRepo:     userRepo,
		activityRepo: activityRepo,
		githubClient: githubClient,
		spotifyCl:    spotifyClient,
		queue:        queue,
		queueName:    queueName,
		appBaseURL:   appBaseURL,
		logger:       logger.With().Str("service", "IntegrationService").Logger(),
	}
}

// GitHubAuthURL returns the OAuth authorize URL with a fresh state token.
func (s *IntegrationService) GitHubAuthURL() (authURL, state string) {
	state = uuid.NewString()
	return s.githubClient.AuthURL(s.githubRedirectURI(), state), state
}

// SpotifyAuthURL returns the OAuth authorize URL with a fresh state token.
func (s *IntegrationService) SpotifyAuthURL() (authURL, state string) {
	state = uuid.NewString()
	return s.spotifyCl.AuthURL(s.spotifyRedirectURI(), state), state
}

// ConnectGitHub exchanges the OAuth code, stores the token and username, and
// enqueues a background sync.
func (s *IntegrationService) ConnectGitHub(ctx context.Context, userID, code string) error {
	token, err := s.githubClient.ExchangeCode(ctx, code)
	if err != nil {
		return fmt.Errorf("github code exchange: %w", err)
	}
	ghUser, err := s.githubClient.GetUser(ctx, token)
	if err != nil {
		return fmt.Errorf("fetch github user: %w", err)
	}
	if err := s.userRepo.ConnectGitHub(ctx, userID, ghUser.Login, token); err != nil {
		return err
	}
	s.enqueueSync(ctx, userID, "github")
	s.logger.Info().Str("user_id", userID).Str("github_username", ghUser.Login).Msg("GitHub connected")
	return nil
}

// ConnectSpotify exchanges the OAuth code and stores the token pair. Spotify
// is a paid-tier feature.
func (s *IntegrationService) ConnectSpotify(ctx context.Context, userID, code string) error {
	profile, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil {
		return ErrUserNotFound
	}
	if profile.SubscriptionTier == model.TierFree {
		return ErrPaidTierRequired
	}

	pair, err := s.spotifyCl.ExchangeCode(ctx, code, s.spotifyRedirectURI())
	if err != nil {
		return fmt.Errorf("spotify code exchange: %w", err)
	}
	if err := s.userRepo.ConnectSpotify(ctx, userID, pair.AccessToken, pair.RefreshToken); err != nil {
		return err
	}
	s.enqueueSync(ctx, userID, "spotify")
	s.logger.Info().Str("user_id", userID).Msg("Spotify connected")
	return nil
}

// DisconnectGitHub clears the stored token and removes the synced commit
// data. Data removal is best effort; orphaned rows are replaced wholesale on
// the next connect.
func (s *IntegrationService) DisconnectGitHub(ctx context.Context, userID string) error {
	if err := s.userRepo.DisconnectGitHub(ctx, userID); err != nil {
		return err
	}
	if err := s.activityRepo.DeleteCommitData(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to delete commit data on disconnect")
	}
	s.logger.Info().Str("user_id", userID).Msg("GitHub disconnected")
	return nil
}

// DisconnectSpotify clears the stored token pair.
func (s *IntegrationService) DisconnectSpotify(ctx context.Context, userID string) error {
	if err := s.userRepo.DisconnectSpotify(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("Spotify disconnected")
	return nil
}

// EnqueueSync requests a background sync for the provider.
func (s *IntegrationService) EnqueueSync(ctx context.Context, userID, provider string) error {
	payload, err := json.Marshal(SyncJob{UserID: userID, Provider: provider})
	if err != nil {
		return err
	}
	return s.queue.Send(ctx, s.queueName, payload)
}

func (s *IntegrationService) enqueueSync(ctx context.Context, userID, provider string) {
	if err := s.EnqueueSync(ctx, userID, provider); err != nil {
		// The user can still trigger a manual sync; connect itself succeeded.
		s.logger.Warn().Err(err).Str("user_id", userID).Str("provider", provider).Msg("Failed to enqueue background sync")
	}
}

func (s *IntegrationService) githubRedirectURI() string {
	return s.appBaseURL + "/integrations/github/callback"
}

func (s *IntegrationService) spotifyRedirectURI() string {
	return s.appBaseURL + "/integrations/spotify/callback"
}
