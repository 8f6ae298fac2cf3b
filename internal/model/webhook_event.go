package model

import "time"

// WebhookEvent records a processed billing webhook delivery for
// deduplication. Unique per (provider, event_id); redeliveries are
// acknowledged without reprocessing.
type WebhookEvent struct {
	Provider   string    `db:"provider" json:"provider"`
	EventID    string    `db:"event_id" json:"event_id"`
	EventType  string    `db:"event_type" json:"event_type"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
}
