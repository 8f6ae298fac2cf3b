package model

import "time"

// VerificationCode is an ephemeral signup verification record. Resends
// create new rows; only the most recent unused, unexpired row matching
// (email, code) is honored at redemption time.
type VerificationCode struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"` // hex(iv):hex(ciphertext)
	Code         string    `db:"code" json:"-"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	Used         bool      `db:"used" json:"used"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
