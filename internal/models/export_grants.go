package models

import "time"

// ExportGrant gates a full (unredacted, encrypted) resource export. Only the
// keyed hash of the grant token is stored; remaining_uses is decremented with
// a conditional update so racing consumers cannot both spend the last use.
type ExportGrant struct {
	ID             string    `db:"id"`
	ResourceType   string    `db:"resource_type"`
	ResourceID     string    `db:"resource_id"`
	TokenHMAC      string    `db:"token_hmac"`
	IssuedByRole   string    `db:"issued_by_role"`
	IssuedByUserID string    `db:"issued_by_user_id"`
	ExpiresAt      time.Time `db:"expires_at"`
	RemainingUses  int       `db:"remaining_uses"`
	CreatedAt      time.Time `db:"created_at"`
}

// Expired reports whether the grant TTL has elapsed at the given instant.
func (g *ExportGrant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}
