package models

import "time"

// Challenge is a short-lived OTP verification record. used_at transitions at
// most once; attempts saturates the challenge after the configured budget.
// The OTP itself is never stored, only its challenge-bound keyed hash.
type Challenge struct {
	ChallengeID string     `db:"challenge_id"`
	EmailHMAC   string     `db:"email_hmac"`
	UAHMAC      string     `db:"ua_hmac"`
	OTPHash     string     `db:"otp_hash"`
	Attempts    int        `db:"attempts"`
	CreatedAt   time.Time  `db:"created_at"`
	ExpiresAt   time.Time  `db:"expires_at"`
	UsedAt      *time.Time `db:"used_at"`
}

// Used reports whether the challenge was already consumed.
func (c *Challenge) Used() bool {
	return c.UsedAt != nil
}

// Expired reports whether the challenge TTL has elapsed at the given instant.
// Expiry is lazy: nothing reaps the row, reads must check every time.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
