package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookEventRepository deduplicates billing webhook deliveries. The
// provider redelivers events and gives no ordering guarantee, so each
// delivery is recorded with an insert-or-skip on (provider, event_id).
type WebhookEventRepository interface {
	// Record stores the event id and reports whether this is the first
	// delivery. A false result means the event was already processed.
	Record(ctx context.Context, provider, eventID, eventType string) (bool, error)
	// Forget removes a recorded event so a redelivery is processed again.
	// Called when handling fails after the event was recorded.
	Forget(ctx context.Context, provider, eventID string) error
}

type webhookEventRepo struct {
	pool *pgxpool.Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepository.
func NewWebhookEventRepo(pool *pgxpool.Pool) WebhookEventRepository {
	return &webhookEventRepo{pool: pool}
}

func (r *webhookEventRepo) Record(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	const q = `
        INSERT INTO webhook_events (provider, event_id, event_type, received_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (provider, event_id) DO NOTHING
    `
	tag, err := r.pool.Exec(ctx, q, provider, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("record webhook event %s: %w", eventID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *webhookEventRepo) Forget(ctx context.Context, provider, eventID string) error {
	const q = `DELETE FROM webhook_events WHERE provider = $1 AND event_id = $2`
	if _, err := r.pool.Exec(ctx, q, provider, eventID); err != nil {
		return fmt.Errorf("forget webhook event %s: %w", eventID, err)
	}
	return nil
}
