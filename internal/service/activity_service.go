package service

import (
	"context"
	"errors"
	"time"

	"github.com/HanabLabs/FocusDock/internal/model"
	"github.com/HanabLabs/FocusDock/internal/repository"

	"github.com/rs/zerolog"
)

// ErrInvalidSession means a submitted work session fails basic sanity
// checks (ordering, duration).
var ErrInvalidSession = errors.New("invalid work session")

// ActivityService serves the dashboard's activity reads and stores completed
// focus-timer sessions.
type ActivityService struct {
	activityRepo repository.ActivityRepository
	logger       zerolog.Logger
}

// NewActivityService creates an ActivityService.
func NewActivityService(activityRepo repository.ActivityRepository, logger zerolog.Logger) *ActivityService {
	return &ActivityService{
		activityRepo: activityRepo,
		logger:       logger.With().Str("service", "ActivityService").Logger(),
	}
}

// SaveWorkSession validates and stores a completed focus-timer session. The
// claimed duration may not exceed the wall-clock span; it may be shorter,
// since paused intervals do not count as work.
func (s *ActivityService) SaveWorkSession(ctx context.Context, userID string, startedAt, endedAt time.Time, durationMinutes int) error {
	if !endedAt.After(startedAt) || durationMinutes <= 0 {
		return ErrInvalidSession
	}
	wallClock := endedAt.Sub(startedAt)
	if time.Duration(durationMinutes)*time.Minute > wallClock+time.Minute {
		return ErrInvalidSession
	}

	ws := &model.WorkSession{
		UserID:          userID,
		Date:            startedAt.UTC().Truncate(24 * time.Hour),
		DurationMinutes: durationMinutes,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
	}
	if err := s.activityRepo.InsertWorkSession(ctx, ws); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to save work session")
		return err
	}
	return nil
}

// RecentCommits returns the user's most recent synced commits for the
// dashboard feed.
func (s *ActivityService) RecentCommits(ctx context.Context, userID string) ([]model.RecentCommit, error) {
	return s.activityRepo.GetRecentCommits(ctx, userID, 5)
}
