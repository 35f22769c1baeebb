package models

import "time"

// Audit actions, enumerated so downstream consumers can rely on the taxonomy.
const (
	ActionChallengeCreated        = "CHALLENGE_CREATED"
	ActionChallengeRateLimited    = "CHALLENGE_RATE_LIMITED"
	ActionChallengeDeliveryFailed = "CHALLENGE_DELIVERY_FAILED"
	ActionChallengeVerifyFailed   = "CHALLENGE_VERIFY_FAILED"
	ActionSessionCreated          = "SESSION_CREATED"
	ActionSessionRevoked          = "SESSION_REVOKED"
	ActionRoleChanged             = "ROLE_CHANGED"
	ActionRoleChangeDenied        = "ROLE_CHANGE_DENIED"
	ActionGrantIssued             = "EXPORT_GRANT_ISSUED"
	ActionGrantConsumed           = "EXPORT_GRANT_CONSUMED"
	ActionGrantDenied             = "EXPORT_GRANT_DENIED"
	ActionAccessDenied            = "ACCESS_DENIED"
)

// Audit results.
const (
	ResultSuccess = "success"
	ResultDenied  = "denied"
	ResultError   = "error"
)

// Audit reason codes.
const (
	ReasonRateLimit              = "RATE_LIMIT"
	ReasonInvalid                = "INVALID"
	ReasonExpired                = "EXPIRED"
	ReasonLocked                 = "LOCKED"
	ReasonConsentMissing         = "CONSENT_MISSING"
	ReasonConsentVersionMismatch = "CONSENT_VERSION_MISMATCH"
	ReasonTokenInvalid           = "TOKEN_INVALID"
	ReasonTokenExpired           = "TOKEN_EXPIRED"
	ReasonTokenUsed              = "TOKEN_USED"
	ReasonSuperadminRequired     = "SUPERADMIN_REQUIRED"
	ReasonDeliveryFailed         = "DELIVERY_FAILED"
)

// AuditEvent is an append-only, PII-free record of an authentication,
// authorization or export decision. Metadata passes through the structural
// denylist filter before it ever reaches this struct's persisted form.
type AuditEvent struct {
	EventBucket int            `db:"event_bucket"`
	EventDate   string         `db:"event_date"`
	EventID     string         `db:"event_id"`
	At          time.Time      `db:"at"`
	Action      string         `db:"action"`
	Result      string         `db:"result"`
	ActorUserID string         `db:"actor_user_id"`
	TargetID    string         `db:"target_id"`
	ReasonCode  string         `db:"reason_code"`
	RequestID   string         `db:"request_id"`
	Metadata    map[string]any `db:"-"`
	MetadataRaw string         `db:"metadata"`
}
