package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"carhistory/internal/models"
)

type sessionRepository struct {
	client *ScyllaClient
}

func NewSessionRepository(client *ScyllaClient) SessionRepository {
	return &sessionRepository{client: client}
}

func (r *sessionRepository) Create(ctx context.Context, s *models.Session) error {
	applied, err := r.client.Session.Query(`
		INSERT INTO sessions (token_hash, session_id, user_id, created_at, expires_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, null) IF NOT EXISTS`,
		s.TokenHash, s.SessionID, s.UserID, s.CreatedAt, s.ExpiresAt).
		WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !applied {
		return fmt.Errorf("session token collision")
	}
	return nil
}

func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	s := &models.Session{}
	var revokedAt time.Time
	err := r.client.Session.Query(`
		SELECT token_hash, session_id, user_id, created_at, expires_at, revoked_at
		FROM sessions WHERE token_hash = ?`,
		tokenHash).
		WithContext(ctx).Scan(&s.TokenHash, &s.SessionID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &revokedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !revokedAt.IsZero() {
		s.RevokedAt = &revokedAt
	}
	return s, nil
}

// Revoke is idempotent: revoking an already revoked session reports false
// without moving the original revocation time.
func (r *sessionRepository) Revoke(ctx context.Context, tokenHash string, revokedAt time.Time) (bool, error) {
	var existing time.Time
	applied, err := r.client.Session.Query(`
		UPDATE sessions SET revoked_at = ? WHERE token_hash = ? IF revoked_at = null`,
		revokedAt, tokenHash).
		WithContext(ctx).ScanCAS(&existing)
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	return applied, nil
}
