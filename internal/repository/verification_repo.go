package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HanabLabs/FocusDock/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerificationRepository stores short-lived signup verification codes.
// Rows are never physically deleted here; lookups filter on used=false and
// expiry so stale rows simply stop matching.
type VerificationRepository interface {
	Create(ctx context.Context, vc *model.VerificationCode) error
	// FindValid returns the newest unused, unexpired code row matching
	// (email, code), or nil when none qualifies.
	FindValid(ctx context.Context, email, code string, now time.Time) (*model.VerificationCode, error)
	MarkUsed(ctx context.Context, id string) error
}

type verificationRepo struct {
	pool *pgxpool.Pool
}

// NewVerificationRepo creates a new VerificationRepository.
func NewVerificationRepo(pool *pgxpool.Pool) VerificationRepository {
	return &verificationRepo{pool: pool}
}

func (r *verificationRepo) Create(ctx context.Context, vc *model.VerificationCode) error {
	const q = `
        INSERT INTO verification_codes (email, password_hash, code, expires_at, used, created_at)
        VALUES ($1, $2, $3, $4, FALSE, NOW())
        RETURNING id, created_at
    `
	err := r.pool.QueryRow(ctx, q, vc.Email, vc.PasswordHash, vc.Code, vc.ExpiresAt).Scan(&vc.ID, &vc.CreatedAt)
	if err != nil {
		return fmt.Errorf("store verification code for %s: %w", vc.Email, err)
	}
	return nil
}

func (r *verificationRepo) FindValid(ctx context.Context, email, code string, now time.Time) (*model.VerificationCode, error) {
	const q = `
        SELECT id, email, password_hash, code, expires_at, used, created_at
        FROM verification_codes
        WHERE email = $1 AND code = $2 AND used = FALSE AND expires_at > $3
        ORDER BY created_at DESC
        LIMIT 1
    `
	var vc model.VerificationCode
	err := r.pool.QueryRow(ctx, q, email, code, now).Scan(
		&vc.ID,
		&vc.Email,
		&vc.PasswordHash,
		&vc.Code,
		&vc.ExpiresAt,
		&vc.Used,
		&vc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup verification code for %s: %w", email, err)
	}
	return &vc, nil
}

func (r *verificationRepo) MarkUsed(ctx context.Context, id string) error {
	const q = `UPDATE verification_codes SET used = TRUE WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("mark verification code %s used: %w", id, err)
	}
	return nil
}
