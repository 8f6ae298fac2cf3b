package service

import (
	"context"
	"fmt"
	"time"

	"github.com/HanabLabs/FocusDock/internal/model"
	"github.com/HanabLabs/FocusDock/internal/provider/spotify"
	"github.com/HanabLabs/FocusDock/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const playsPerPage = 50

// spotifyAPIClient is the subset of the Spotify client the synchronizer uses.
type spotifyAPIClient interface {
	RecentlyPlayed(ctx context.Context, accessToken string, limit int, before int64) ([]spotify.PlayItem, error)
}

// SpotifySyncService pulls the trailing lookback window of listening history
// and stores each play event individually.
type SpotifySyncService struct {
	userRepo     repository.UserRepository
	activityRepo repository.ActivityRepository
	vault        TokenProvider
	client       spotifyAPIClient
	lookbackDays int
	limiter      *rate.Limiter
	logger       zerolog.Logger
}

// NewSpotifySyncService creates a SpotifySyncService.
func NewSpotifySyncService(
	userRepo repository.UserRepository,
	activityRepo repository.ActivityRepository,
	vault TokenProvider,
	client spotifyAPIClient,
	lookbackDays int,
	requestDelay time.Duration,
	logger zerolog.Logger,
) *SpotifySyncService {
	return &SpotifySyncService{
		userRepo:     userRepo,
		activityRepo: activityRepo,
		vault:        vault,
		client:       client,
		lookbackDays: lookbackDays,
		limiter:      rate.NewLimiter(rate.Every(requestDelay), 1),
		logger:       logger.With().Str("service", "SpotifySyncService").Logger(),
	}
}

// Sync fetches and stores listening history for the user, paging backwards
// with the before cursor until a page comes back short or the oldest play
// falls outside the lookback window. It returns the number of play events
// written.
func (s *SpotifySyncService) Sync(ctx context.Context, userID string) (int, error) {
	profile, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if profile == nil {
		return 0, ErrUserNotFound
	}
	if !profile.SpotifyConnected || profile.SpotifyAccessToken == nil || profile.SpotifyRefreshToken == nil {
		return 0, ErrNotConnected
	}

	token, err := s.vault.ValidSpotifyToken(ctx, userID, *profile.SpotifyAccessToken, *profile.SpotifyRefreshToken)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	windowStart := now.AddDate(0, 0, -s.lookbackDays)

	var sessions []model.ListeningSession
	var before int64
	pagesFetched := 0

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		items, err := s.client.RecentlyPlayed(ctx, token, playsPerPage, before)
		if err != nil {
			if pagesFetched == 0 {
				return 0, fmt.Errorf("fetch listening history: %w", err)
			}
			// Keep what was already fetched; the next sync fills the gap.
			s.logger.Warn().Err(err).Str("user_id", userID).Int("pages", pagesFetched).Msg("Listening history page failed; stopping pagination")
			break
		}
		pagesFetched++
		if len(items) == 0 {
			break
		}

		reachedWindowEdge := false
		for _, it := range items {
			if it.PlayedAt.Before(windowStart) {
				reachedWindowEdge = true
				break
			}
			sessions = append(sessions, model.ListeningSession{
				UserID:     userID,
				Date:       it.PlayedAt.UTC().Truncate(24 * time.Hour),
				ArtistName: it.ArtistName,
				TrackName:  it.TrackName,
				DurationMS: it.DurationMS,
				PlayedAt:   it.PlayedAt,
			})
		}
		if reachedWindowEdge || len(items) < playsPerPage {
			break
		}
		before = items[len(items)-1].PlayedAt.UnixMilli()
	}

	if err := s.activityRepo.ReplaceListeningSessions(ctx, userID, windowStart.Truncate(24*time.Hour), sessions); err != nil {
		return 0, err
	}

	if err := s.userRepo.TouchSpotifySyncedAt(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to update spotify_last_synced_at")
	}

	s.logger.Info().Str("user_id", userID).Int("plays", len(sessions)).Msg("Spotify sync completed")
	return len(sessions), nil
}
