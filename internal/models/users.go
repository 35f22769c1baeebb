package models

import "time"

// User carries no raw email; only the keyed hash of the normalized address.
// Accounts are never physically deleted, lifecycle is the status field.
type User struct {
	UserBucket int       `db:"user_bucket"`
	UserID     string    `db:"user_id"`
	EmailHMAC  string    `db:"email_hmac"`
	Role       string    `db:"role"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)
