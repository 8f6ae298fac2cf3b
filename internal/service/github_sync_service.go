package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/HanabLabs/FocusDock/internal/model"
	"github.com/HanabLabs/FocusDock/internal/provider/github"
	"github.com/HanabLabs/FocusDock/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrNotConnected means the user has not linked the provider.
	ErrNotConnected = errors.New("provider not connected")
	// ErrProviderUnavailable means every unit of work against the provider
	// failed; partial failures are skipped, not escalated.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

const commitsPerPage = 100

// TokenProvider supplies provider access tokens guaranteed valid for the
// next call. Implemented by TokenVault.
type TokenProvider interface {
	ValidGitHubToken(ctx context.Context, userID, accessToken string) (string, error)
	ValidSpotifyToken(ctx context.Context, userID, accessToken, refreshToken string) (string, error)
}

// githubAPIClient is the subset of the GitHub client the synchronizer uses.
type githubAPIClient interface {
	ListRepos(ctx context.Context, accessToken string) ([]github.Repo, error)
	ListCommits(ctx context.Context, accessToken, repoFullName, author string, since time.Time, page, perPage int) ([]github.Commit, error)
}

// GitHubSyncService pulls the trailing lookback window of commit activity
// and stores it as per-(date, repository) aggregates. Re-running a sync over
// an unchanged upstream converges to the same rows.
type GitHubSyncService struct {
	userRepo     repository.UserRepository
	activityRepo repository.ActivityRepository
	vault        TokenProvider
	client       githubAPIClient
	lookbackDays int
	limiter      *rate.Limiter
	logger       zerolog.Logger
}

// NewGitHubSyncService creates a GitHubSyncService. requestDelay paces
// outbound GitHub calls to stay within the API rate limits.
func NewGitHubSyncService(
	userRepo repository.UserRepository,
	activityRepo repository.ActivityRepository,
	vault TokenProvider,
	client githubAPIClient,
	lookbackDays int,
	requestDelay time.Duration,
	logger zerolog.Logger,
) *GitHubSyncService {
	return &GitHubSyncService{
		userRepo:     userRepo,
		activityRepo: activityRepo,
		vault:        vault,
		client:       client,
		lookbackDays: lookbackDays,
		limiter:      rate.NewLimiter(rate.Every(requestDelay), 1),
		logger:       logger.With().Str("service", "GitHubSyncService").Logger(),
	}
}

// Sync fetches and stores commit activity for the user. It returns the
// number of aggregate rows written. Individual repository failures are
// logged and skipped; the sync only fails outright when no repository could
// be fetched at all.
func (s *GitHubSyncService) Sync(ctx context.Context, userID string) (int, error) {
	profile, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if profile == nil {
		return 0, ErrUserNotFound
	}
	if !profile.GitHubConnected || profile.GitHubAccessToken == nil || profile.GitHubUsername == nil {
		return 0, ErrNotConnected
	}

	token, err := s.vault.ValidGitHubToken(ctx, userID, *profile.GitHubAccessToken)
	if err != nil {
		return 0, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	repos, err := s.client.ListRepos(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("list repositories: %w", err)
	}

	now := time.Now().UTC()
	windowStart := now.AddDate(0, 0, -s.lookbackDays)

	groups := make(map[string]*model.CommitAggregate)
	var recent []model.RecentCommit
	fetchedRepos := 0

	for _, repo := range repos {
		commits, err := s.fetchRepoCommits(ctx, token, repo.FullName, *profile.GitHubUsername, windowStart)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Str("repository", repo.FullName).Msg("Skipping repository after fetch failure")
			continue
		}
		fetchedRepos++

		for _, c := range commits {
			commitDate := c.Commit.Author.Date
			if commitDate.Before(windowStart) || commitDate.After(now) {
				continue
			}
			day := commitDate.UTC().Truncate(24 * time.Hour)
			key := day.Format("2006-01-02") + "|" + repo.Name

			msg := strings.ToLower(c.Commit.Message)
			isSquash := strings.Contains(msg, "squash") || strings.Contains(msg, "fixup")
			isMerge := strings.HasPrefix(c.Commit.Message, "Merge")
			isBot := c.Author != nil && strings.HasSuffix(c.Author.Login, "[bot]")

			agg, ok := groups[key]
			if !ok {
				agg = &model.CommitAggregate{UserID: userID, Date: day, Repository: repo.Name}
				groups[key] = agg
			}
			agg.CommitCount++
			agg.IsSquash = agg.IsSquash || isSquash
			agg.IsMerge = agg.IsMerge || isMerge
			agg.IsBot = agg.IsBot || isBot

			recent = append(recent, model.RecentCommit{
				UserID:     userID,
				Repository: repo.Name,
				Message:    firstLine(c.Commit.Message),
				Date:       commitDate,
			})
		}
	}

	if len(repos) > 0 && fetchedRepos == 0 {
		return 0, ErrProviderUnavailable
	}

	aggregates := make([]model.CommitAggregate, 0, len(groups))
	for _, agg := range groups {
		aggregates = append(aggregates, *agg)
	}
	if err := s.activityRepo.ReplaceCommitAggregates(ctx, userID, windowStart.Truncate(24*time.Hour), aggregates); err != nil {
		return 0, err
	}

	sort.Slice(recent, func(i, j int) bool { return recent[i].Date.After(recent[j].Date) })
	if len(recent) > 5 {
		recent = recent[:5]
	}
	if err := s.activityRepo.ReplaceRecentCommits(ctx, userID, recent); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to store recent commits")
	}

	if err := s.userRepo.TouchGitHubSyncedAt(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to update github_last_synced_at")
	}

	s.logger.Info().Str("user_id", userID).Int("repositories", fetchedRepos).Int("aggregates", len(aggregates)).Msg("GitHub sync completed")
	return len(aggregates), nil
}

// fetchRepoCommits pages through a repository's commit list, newest first,
// while pages come back full and the oldest commit seen is still inside the
// lookback window.
func (s *GitHubSyncService) fetchRepoCommits(ctx context.Context, token, repoFullName, author string, since time.Time) ([]github.Commit, error) {
	var all []github.Commit
	for page := 1; ; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		commits, err := s.client.ListCommits(ctx, token, repoFullName, author, since, page, commitsPerPage)
		if err != nil {
			return nil, err
		}
		if len(commits) == 0 {
			break
		}
		all = append(all, commits...)
		if len(commits) < commitsPerPage {
			break
		}
		if commits[len(commits)-1].Commit.Author.Date.Before(since) {
			break
		}
	}
	return all, nil
}

func firstLine(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return message[:i]
	}
	return message
}
