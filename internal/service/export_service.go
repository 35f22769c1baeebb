package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carhistory/internal/audit"
	"carhistory/internal/config"
	"carhistory/internal/encryption"
	"carhistory/internal/hashing"
	"carhistory/internal/models"
	"carhistory/internal/redact"
	"carhistory/internal/repository/scylla"
)

var (
	ErrTokenInvalid     = errors.New("export token invalid")
	ErrTokenExpired     = errors.New("export token expired")
	ErrTokenUsed        = errors.New("export token exhausted")
	ErrResourceNotFound = errors.New("resource not found")
)

// ResourceTypeVehicle is the only exportable resource type today.
const ResourceTypeVehicle = "vehicle"

type GrantIssued struct {
	GrantID       string
	Token         string
	ExpiresAt     time.Time
	RemainingUses int
}

// ExportService issues one-time export grants and serves the two export
// shapes: redacted rows for regular reads and an encrypted full row behind
// a grant token.
type ExportService struct {
	cfg      *config.Config
	hasher   *hashing.Hasher
	grants   scylla.GrantRepository
	vehicles scylla.VehicleRepository
	enc      *encryption.EncryptionManager
	redactor *redact.Redactor
	trail    audit.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewExportService(
	cfg *config.Config,
	hasher *hashing.Hasher,
	grants scylla.GrantRepository,
	vehicles scylla.VehicleRepository,
	enc *encryption.EncryptionManager,
	redactor *redact.Redactor,
	trail audit.Recorder,
	logger *zap.Logger,
) *ExportService {
	return &ExportService{
		cfg:      cfg,
		hasher:   hasher,
		grants:   grants,
		vehicles: vehicles,
		enc:      enc,
		redactor: redactor,
		trail:    trail,
		logger:   logger,
		now:      time.Now,
	}
}

// IssueGrant mints a grant token for one resource. TTL and use count are
// clamped to configured bounds rather than rejected, so callers cannot
// stretch a grant past policy. The raw token exists only in the response.
func (s *ExportService) IssueGrant(ctx context.Context, actor models.Actor, resourceType, resourceID string, ttl time.Duration, uses int, requestID string) (*GrantIssued, error) {
	if resourceType != ResourceTypeVehicle {
		return nil, ErrResourceNotFound
	}
	if _, err := s.vehicles.Get(ctx, resourceID); err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}

	ttl = s.clampTTL(ttl)
	uses = s.clampUses(uses)

	token, err := hashing.RandomToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	grant := &models.ExportGrant{
		ID:             uuid.New().String(),
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		TokenHMAC:      s.hasher.Derive("export", token),
		IssuedByRole:   actor.Role,
		IssuedByUserID: actor.UserID,
		ExpiresAt:      now.Add(ttl),
		RemainingUses:  uses,
		CreatedAt:      now,
	}
	if err := s.grants.Create(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to create export grant: %w", err)
	}

	_ = s.trail.Record(ctx, audit.Entry{
		Action:      models.ActionGrantIssued,
		Result:      models.ResultSuccess,
		ActorUserID: actor.UserID,
		TargetID:    grant.ID,
		RequestID:   requestID,
		Metadata: map[string]any{
			"resource_type": resourceType,
			"resource_id":   resourceID,
			"ttl_seconds":   int(ttl.Seconds()),
			"uses":          uses,
		},
	})

	return &GrantIssued{
		GrantID:       grant.ID,
		Token:         token,
		ExpiresAt:     grant.ExpiresAt,
		RemainingUses: uses,
	}, nil
}

// ConsumeFullExport spends one grant use and returns the full resource row
// encrypted. Expiry and exhaustion are distinct failures so the caller can
// tell a stale token from a spent one; both are audited.
func (s *ExportService) ConsumeFullExport(ctx context.Context, actor models.Actor, resourceType, resourceID, token, requestID string) (*encryption.EncryptedPayload, error) {
	tokenHMAC := s.hasher.Derive("export", token)
	grant, err := s.grants.GetByToken(ctx, resourceType, resourceID, tokenHMAC)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			s.auditGrantDenied(ctx, actor, resourceID, models.ReasonTokenInvalid, requestID)
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	now := s.now().UTC()
	if grant.Expired(now) {
		s.auditGrantDenied(ctx, actor, grant.ID, models.ReasonTokenExpired, requestID)
		return nil, ErrTokenExpired
	}
	if grant.RemainingUses <= 0 {
		s.auditGrantDenied(ctx, actor, grant.ID, models.ReasonTokenUsed, requestID)
		return nil, ErrTokenUsed
	}

	// Seal the payload before spending the use, so a fetch or encryption
	// failure never burns a use with nothing delivered.
	vehicle, err := s.vehicles.Get(ctx, resourceID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	plaintext, err := json.Marshal(vehicle.FullRow())
	if err != nil {
		return nil, err
	}
	payload, err := s.enc.EncryptExport(ctx, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt export: %w", err)
	}

	applied, err := s.grants.ConsumeUse(ctx, grant)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Another request spent the last use first; the sealed payload
		// is discarded.
		s.auditGrantDenied(ctx, actor, grant.ID, models.ReasonTokenUsed, requestID)
		return nil, ErrTokenUsed
	}

	_ = s.trail.Record(ctx, audit.Entry{
		Action:      models.ActionGrantConsumed,
		Result:      models.ResultSuccess,
		ActorUserID: actor.UserID,
		TargetID:    grant.ID,
		RequestID:   requestID,
		Metadata: map[string]any{
			"resource_type": resourceType,
			"resource_id":   resourceID,
		},
	})
	return payload, nil
}

// RedactedExport returns the resource row with PII fields dropped and
// correlation keys pseudonymized. No grant is required.
func (s *ExportService) RedactedExport(ctx context.Context, vehicleID string) (map[string]any, error) {
	vehicle, err := s.vehicles.Get(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return s.redactor.Denylist(vehicle.FullRow()), nil
}

func (s *ExportService) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.cfg.Export.DefaultTTL
	}
	if ttl < s.cfg.Export.MinTTL {
		return s.cfg.Export.MinTTL
	}
	if ttl > s.cfg.Export.MaxTTL {
		return s.cfg.Export.MaxTTL
	}
	return ttl
}

func (s *ExportService) clampUses(uses int) int {
	if uses <= 0 {
		return 1
	}
	if uses > s.cfg.Export.MaxUses {
		return s.cfg.Export.MaxUses
	}
	return uses
}

func (s *ExportService) auditGrantDenied(ctx context.Context, actor models.Actor, targetID, reason, requestID string) {
	_ = s.trail.Record(ctx, audit.Entry{
		Action:      models.ActionGrantDenied,
		Result:      models.ResultDenied,
		ActorUserID: actor.UserID,
		TargetID:    targetID,
		ReasonCode:  reason,
		RequestID:   requestID,
	})
}
