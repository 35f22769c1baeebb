package models

import "time"

// Session stores only the keyed hash of the bearer token. The raw token is
// returned to the caller exactly once at mint time and never persisted.
type Session struct {
	TokenHash string     `db:"token_hash"`
	SessionID string     `db:"session_id"`
	UserID    string     `db:"user_id"`
	CreatedAt time.Time  `db:"created_at"`
	ExpiresAt time.Time  `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
}

// Valid reports whether the session is usable at the given instant.
func (s *Session) Valid(now time.Time) bool {
	return s.RevokedAt == nil && !now.After(s.ExpiresAt)
}
