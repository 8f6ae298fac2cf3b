package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/HanabLabs/FocusDock/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityRepository persists synchronized external activity. The replace
// operations run delete-then-insert inside one transaction so a re-sync over
// the same window converges without ever exposing a half-written state.
type ActivityRepository interface {
	ReplaceCommitAggregates(ctx context.Context, userID string, windowStart time.Time, aggregates []model.CommitAggregate) error
	ReplaceRecentCommits(ctx context.Context, userID string, commits []model.RecentCommit) error
	ReplaceListeningSessions(ctx context.Context, userID string, windowStart time.Time, sessions []model.ListeningSession) error
	DeleteCommitData(ctx context.Context, userID string) error
	GetRecentCommits(ctx context.Context, userID string, limit int) ([]model.RecentCommit, error)
	CountCommitAggregates(ctx context.Context, userID string) (int, error)
	InsertWorkSession(ctx context.Context, ws *model.WorkSession) error
}

type activityRepo struct {
	pool *pgxpool.Pool
}

// NewActivityRepo creates a new ActivityRepository.
func NewActivityRepo(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepo{pool: pool}
}

func (r *activityRepo) ReplaceCommitAggregates(ctx context.Context, userID string, windowStart time.Time, aggregates []model.CommitAggregate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit replace tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const del = `DELETE FROM github_commits WHERE user_id = $1 AND date >= $2`
	if _, err := tx.Exec(ctx, del, userID, windowStart); err != nil {
		return fmt.Errorf("clear commit window for user %s: %w", userID, err)
	}

	const ins = `
        INSERT INTO github_commits (user_id, date, repository, commit_count, is_squash, is_merge, is_bot)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_id, date, repository) DO UPDATE
        SET commit_count = EXCLUDED.commit_count,
            is_squash = EXCLUDED.is_squash,
            is_merge = EXCLUDED.is_merge,
            is_bot = EXCLUDED.is_bot
    `
	for _, a := range aggregates {
		if _, err := tx.Exec(ctx, ins, userID, a.Date, a.Repository, a.CommitCount, a.IsSquash, a.IsMerge, a.IsBot); err != nil {
			return fmt.Errorf("insert commit aggregate %s/%s: %w", a.Repository, a.Date.Format("2006-01-02"), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

func (r *activityRepo) ReplaceRecentCommits(ctx context.Context, userID string, commits []model.RecentCommit) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin recent-commit replace tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM github_recent_commits WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear recent commits for user %s: %w", userID, err)
	}
	const ins = `
        INSERT INTO github_recent_commits (user_id, repository, message, date)
        VALUES ($1, $2, $3, $4)
    `
	for _, c := range commits {
		if _, err := tx.Exec(ctx, ins, userID, c.Repository, c.Message, c.Date); err != nil {
			return fmt.Errorf("insert recent commit: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("recent-commit replace tx: %w", err)
	}
	return nil
}

func (r *activityRepo) ReplaceListeningSessions(ctx context.Context, userID string, windowStart time.Time, sessions []model.ListeningSession) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin session replace tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const del = `DELETE FROM spotify_sessions WHERE user_id = $1 AND date >= $2`
	if _, err := tx.Exec(ctx, del, userID, windowStart); err != nil {
		return fmt.Errorf("clear session window for user %s: %w", userID, err)
	}

	const ins = `
        INSERT INTO spotify_sessions (user_id, date, artist_name, track_name, duration_ms, played_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	for _, s := range sessions {
		if _, err := tx.Exec(ctx, ins, userID, s.Date, s.ArtistName, s.TrackName, s.DurationMS, s.PlayedAt); err != nil {
			return fmt.Errorf("insert listening session: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("session replace tx: %w", err)
	}
	return nil
}

// DeleteCommitData removes all stored GitHub activity for a user. Used on
// provider disconnect.
func (r *activityRepo) DeleteCommitData(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM github_commits WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete github commits for user %s: %w", userID, err)
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM github_recent_commits WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete github recent commits for user %s: %w", userID, err)
	}
	return nil
}

func (r *activityRepo) GetRecentCommits(ctx context.Context, userID string, limit int) ([]model.RecentCommit, error) {
	const q = `
        SELECT repository, message, date
        FROM github_recent_commits
        WHERE user_id = $1
        ORDER BY date DESC
        LIMIT $2
    `
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch recent commits for user %s: %w", userID, err)
	}
	defer rows.Close()

	var commits []model.RecentCommit
	for rows.Next() {
		c := model.RecentCommit{UserID: userID}
		if err := rows.Scan(&c.Repository, &c.Message, &c.Date); err != nil {
			return nil, fmt.Errorf("scan recent commit: %w", err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

func (r *activityRepo) CountCommitAggregates(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM github_commits WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count commit aggregates for user %s: %w", userID, err)
	}
	return n, nil
}

func (r *activityRepo) InsertWorkSession(ctx context.Context, ws *model.WorkSession) error {
	const q = `
        INSERT INTO work_sessions (user_id, date, duration_minutes, started_at, ended_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	if _, err := r.pool.Exec(ctx, q, ws.UserID, ws.Date, ws.DurationMinutes, ws.StartedAt, ws.EndedAt); err != nil {
		return fmt.Errorf("insert work session for user %s: %w", ws.UserID, err)
	}
	return nil
}
