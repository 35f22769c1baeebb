package scylla

import (
	"context"
	"time"

	"carhistory/internal/models"
)

// UserRepository manages accounts keyed by hashed email.
type UserRepository interface {
	UpsertByEmailHash(ctx context.Context, emailHMAC string) (*models.User, error)
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByEmailHash(ctx context.Context, emailHMAC string) (*models.User, error)
	UpdateRole(ctx context.Context, userID, role string) error
}

// ChallengeRepository manages OTP challenges. MarkUsed and IncrementAttempts
// are conditional updates so the state machine holds under concurrency.
type ChallengeRepository interface {
	Create(ctx context.Context, ch *models.Challenge) error
	Get(ctx context.Context, challengeID string) (*models.Challenge, error)
	IncrementAttempts(ctx context.Context, challengeID string) (int, error)
	MarkUsed(ctx context.Context, challengeID string, usedAt time.Time) (bool, error)
}

// SessionRepository manages bearer sessions keyed by token hash.
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Revoke(ctx context.Context, tokenHash string, revokedAt time.Time) (bool, error)
}

// GrantRepository manages export grants. ConsumeUse decrements
// remaining_uses with a compare-and-set so two racing consumers cannot both
// spend the last use.
type GrantRepository interface {
	Create(ctx context.Context, g *models.ExportGrant) error
	GetByToken(ctx context.Context, resourceType, resourceID, tokenHMAC string) (*models.ExportGrant, error)
	ConsumeUse(ctx context.Context, g *models.ExportGrant) (bool, error)
}

// ConsentRepository records accepted document versions.
type ConsentRepository interface {
	Record(ctx context.Context, c *models.Consent) error
}

// VehicleRepository is the resource store behind the export endpoints.
type VehicleRepository interface {
	Get(ctx context.Context, vehicleID string) (*models.Vehicle, error)
	Put(ctx context.Context, v *models.Vehicle) error
}

// AuditEventRepository appends to the primary audit table.
type AuditEventRepository interface {
	Append(ctx context.Context, e *models.AuditEvent) error
}
