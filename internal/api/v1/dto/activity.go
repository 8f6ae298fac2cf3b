package dto

import "time"

// WorkSessionRequest records a completed focus-timer session.
type WorkSessionRequest struct {
	StartedAt       time.Time `json:"started_at" validate:"required"`
	EndedAt         time.Time `json:"ended_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
}

// RecentCommitResponse is one entry in the dashboard's recent-commit feed.
type RecentCommitResponse struct {
	Repository string    `json:"repository"`
	Message    string    `json:"message"`
	Date       time.Time `json:"date"`
}
