package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/HanabLabs/FocusDock/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository defines methods for accessing user profile data.
// Tier transitions are expressed as guarded single-row updates so that
// concurrent webhook deliveries converge regardless of arrival order.
type UserRepository interface {
	CreateProfile(ctx context.Context, userID, email string) error
	GetUserByID(ctx context.Context, id string) (*model.UserProfile, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.UserProfile, error)
	UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error

	// SetTierLifetime upgrades the tier to lifetime unless it already is.
	// Returns true when a row was updated.
	SetTierLifetime(ctx context.Context, userID string) (bool, error)
	// SetTierMonthlyUnlessLifetime sets the tier to monthly unless the user
	// holds a lifetime entitlement. Returns true when a row was updated.
	SetTierMonthlyUnlessLifetime(ctx context.Context, userID string) (bool, error)
	// SetTierFree downgrades to free unconditionally (cancellation wins).
	SetTierFree(ctx context.Context, userID string) error

	ConnectGitHub(ctx context.Context, userID, username, accessToken string) error
	DisconnectGitHub(ctx context.Context, userID string) error
	ConnectSpotify(ctx context.Context, userID, accessToken, refreshToken string) error
	DisconnectSpotify(ctx context.Context, userID string) error
	UpdateSpotifyAccessToken(ctx context.Context, userID, accessToken string) error

	TouchGitHubSyncedAt(ctx context.Context, userID string) error
	TouchSpotifySyncedAt(ctx context.Context, userID string) error
}

type userRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo creates a new UserRepository.
func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

const userColumns = `id, email, subscription_tier, stripe_customer_id,
       github_connected, github_username, github_access_token,
       spotify_connected, spotify_access_token, spotify_refresh_token,
       github_last_synced_at, spotify_last_synced_at, created_at, updated_at`

func scanUser(row pgx.Row) (*model.UserProfile, error) {
	var u model.UserProfile
	err := row.Scan(
		&u.UserID,
		&u.Email,
		&u.SubscriptionTier,
		&u.StripeCustomerID,
		&u.GitHubConnected,
		&u.GitHubUsername,
		&u.GitHubAccessToken,
		&u.SpotifyConnected,
		&u.SpotifyAccessToken,
		&u.SpotifyRefreshToken,
		&u.GitHubLastSyncedAt,
		&u.SpotifyLastSyncedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) CreateProfile(ctx context.Context, userID, email string) error {
	const q = `
        INSERT INTO user_profiles (id, email, subscription_tier, created_at, updated_at)
        VALUES ($1, $2, 'free', NOW(), NOW())
    `
	if _, err := r.pool.Exec(ctx, q, userID, email); err != nil {
		return fmt.Errorf("create profile for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.UserProfile, error) {
	q := `SELECT ` + userColumns + ` FROM user_profiles WHERE id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	return u, nil
}

func (r *userRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.UserProfile, error) {
	q := `SELECT ` + userColumns + ` FROM user_profiles WHERE stripe_customer_id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, customerID))
	if err != nil {
		return nil, fmt.Errorf("fetch user by stripe customer %s: %w", customerID, err)
	}
	return u, nil
}

func (r *userRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	const q = `UPDATE user_profiles SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, userID, customerID); err != nil {
		return fmt.Errorf("update stripe customer id for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) SetTierLifetime(ctx context.Context, userID string) (bool, error) {
	const q = `
        UPDATE user_profiles
        SET subscription_tier = 'lifetime', updated_at = NOW()
        WHERE id = $1 AND subscription_tier <> 'lifetime'
    `
	tag, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return false, fmt.Errorf("set lifetime tier for user %s: %w", userID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *userRepo) SetTierMonthlyUnlessLifetime(ctx context.Context, userID string) (bool, error) {
	const q = `
        UPDATE user_profiles
        SET subscription_tier = 'monthly', updated_at = NOW()
        WHERE id = $1 AND subscription_tier <> 'lifetime'
    `
	tag, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return false, fmt.Errorf("set monthly tier for user %s: %w", userID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *userRepo) SetTierFree(ctx context.Context, userID string) error {
	const q = `UPDATE user_profiles SET subscription_tier = 'free', updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("set free tier for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) ConnectGitHub(ctx context.Context, userID, username, accessToken string) error {
	const q = `
        UPDATE user_profiles
        SET github_connected = TRUE,
            github_username = $2,
            github_access_token = $3,
            updated_at = NOW()
        WHERE id = $1
    `
	if _, err := r.pool.Exec(ctx, q, userID, username, accessToken); err != nil {
		return fmt.Errorf("connect github for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) DisconnectGitHub(ctx context.Context, userID string) error {
	const q = `
        UPDATE user_profiles
        SET github_connected = FALSE,
            github_username = NULL,
            github_access_token = NULL,
            updated_at = NOW()
        WHERE id = $1
    `
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("disconnect github for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) ConnectSpotify(ctx context.Context, userID, accessToken, refreshToken string) error {
	const q = `
        UPDATE user_profiles
        SET spotify_connected = TRUE,
            spotify_access_token = $2,
            spotify_refresh_token = $3,
            updated_at = NOW()
        WHERE id = $1
    `
	if _, err := r.pool.Exec(ctx, q, userID, accessToken, refreshToken); err != nil {
		return fmt.Errorf("connect spotify for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) DisconnectSpotify(ctx context.Context, userID string) error {
	const q = `
        UPDATE user_profiles
        SET spotify_connected = FALSE,
            spotify_access_token = NULL,
            spotify_refresh_token = NULL,
            updated_at = NOW()
        WHERE id = $1
    `
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("disconnect spotify for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) UpdateSpotifyAccessToken(ctx context.Context, userID, accessToken string) error {
	const q = `UPDATE user_profiles SET spotify_access_token = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, userID, accessToken); err != nil {
		return fmt.Errorf("update spotify token for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) TouchGitHubSyncedAt(ctx context.Context, userID string) error {
	const q = `UPDATE user_profiles SET github_last_synced_at = NOW(), updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("touch github synced_at for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) TouchSpotifySyncedAt(ctx context.Context, userID string) error {
	const q = `UPDATE user_profiles SET spotify_last_synced_at = NOW(), updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("touch spotify synced_at for user %s: %w", userID, err)
	}
	return nil
}
