package model

import "time"

// CommitAggregate is one day of commit activity in one repository,
// normalized from the raw GitHub commit list. Unique per
// (user_id, date, repository); classification flags are OR'd across the
// commits sharing the key.
type CommitAggregate struct {
	UserID      string    `db:"user_id" json:"user_id"`
	Date        time.Time `db:"date" json:"date"`
	Repository  string    `db:"repository" json:"repository"`
	CommitCount int       `db:"commit_count" json:"commit_count"`
	IsSquash    bool      `db:"is_squash" json:"is_squash"`
	IsMerge     bool      `db:"is_merge" json:"is_merge"`
	IsBot       bool      `db:"is_bot" json:"is_bot"`
}

// RecentCommit is a single recent commit kept for the dashboard feed.
type RecentCommit struct {
	UserID     string    `db:"user_id" json:"-"`
	Repository string    `db:"repository" json:"repository"`
	Message    string    `db:"message" json:"message"`
	Date       time.Time `db:"date" json:"date"`
}

// ListeningSession is one Spotify play event. Play events are stored
// individually, not aggregated.
type ListeningSession struct {
	UserID     string    `db:"user_id" json:"user_id"`
	Date       time.Time `db:"date" json:"date"`
	ArtistName string    `db:"artist_name" json:"artist_name"`
	TrackName  string    `db:"track_name" json:"track_name"`
	DurationMS int       `db:"duration_ms" json:"duration_ms"`
	PlayedAt   time.Time `db:"played_at" json:"played_at"`
}

// WorkSession is a completed focus-timer session.
type WorkSession struct {
	UserID          string    `db:"user_id" json:"user_id"`
	Date            time.Time `db:"date" json:"date"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	StartedAt       time.Time `db:"started_at" json:"started_at"`
	EndedAt         time.Time `db:"ended_at" json:"ended_at"`
}

// Pause is one paused interval within a work session. An in-progress pause
// has a nil End.
type Pause struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// NetWorkDuration computes elapsed net work time for a session started at
// start, given its pause history, as of now. Paused intervals are subtracted;
// a still-open pause is truncated at now. The computation is pure so a
// session can be replayed from persisted transition timestamps instead of
// accumulating in-memory deltas.
func NetWorkDuration(start time.Time, pauses []Pause, now time.Time) time.Duration {
	if now.Before(start) {
		return 0
	}
	total := now.Sub(start)
	for _, p := range pauses {
		if p.Start.After(now) {
			continue
		}
		end := now
		if p.End != nil && p.End.Before(now) {
			end = *p.End
		}
		if end.After(p.Start) {
			total -= end.Sub(p.Start)
		}
	}
	if total < 0 {
		return 0
	}
	return total
}
