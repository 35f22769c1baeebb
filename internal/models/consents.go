package models

import "time"

// Consent records acceptance of one required document version. IP and user
// agent are keyed hashes, never raw values.
type Consent struct {
	UserID     string    `db:"user_id"`
	DocType    string    `db:"doc_type"`
	Version    string    `db:"version"`
	IPHMAC     string    `db:"ip_hmac"`
	UAHMAC     string    `db:"ua_hmac"`
	AcceptedAt time.Time `db:"accepted_at"`
}
