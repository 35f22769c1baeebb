package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"carhistory/internal/models"
)

const consumeCASRetries = 3

type grantRepository struct {
	client *ScyllaClient
}

func NewGrantRepository(client *ScyllaClient) GrantRepository {
	return &grantRepository{client: client}
}

func (r *grantRepository) Create(ctx context.Context, g *models.ExportGrant) error {
	if err := r.client.Session.Query(`
		INSERT INTO export_grants (resource_type, resource_id, token_hmac, id, issued_by_role, issued_by_user_id, expires_at, remaining_uses, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ResourceType, g.ResourceID, g.TokenHMAC, g.ID, g.IssuedByRole,
		g.IssuedByUserID, g.ExpiresAt, g.RemainingUses, g.CreatedAt).
		WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create export grant: %w", err)
	}
	return nil
}

func (r *grantRepository) GetByToken(ctx context.Context, resourceType, resourceID, tokenHMAC string) (*models.ExportGrant, error) {
	g := &models.ExportGrant{}
	err := r.client.Session.Query(`
		SELECT resource_type, resource_id, token_hmac, id, issued_by_role, issued_by_user_id, expires_at, remaining_uses, created_at
		FROM export_grants WHERE resource_type = ? AND resource_id = ? AND token_hmac = ?`,
		resourceType, resourceID, tokenHMAC).
		WithContext(ctx).Scan(
		&g.ResourceType, &g.ResourceID, &g.TokenHMAC, &g.ID, &g.IssuedByRole,
		&g.IssuedByUserID, &g.ExpiresAt, &g.RemainingUses, &g.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get export grant: %w", err)
	}
	return g, nil
}

// ConsumeUse decrements remaining_uses with a compare-and-set. When two
// requests race for the last use, exactly one observes applied=true.
func (r *grantRepository) ConsumeUse(ctx context.Context, g *models.ExportGrant) (bool, error) {
	current := g.RemainingUses

	for i := 0; i < consumeCASRetries; i++ {
		if current <= 0 {
			return false, nil
		}
		var existing int
		applied, err := r.client.Session.Query(`
			UPDATE export_grants SET remaining_uses = ?
			WHERE resource_type = ? AND resource_id = ? AND token_hmac = ?
			IF remaining_uses = ?`,
			current-1, g.ResourceType, g.ResourceID, g.TokenHMAC, current).
			WithContext(ctx).ScanCAS(&existing)
		if err != nil {
			return false, fmt.Errorf("failed to consume grant use: %w", err)
		}
		if applied {
			return true, nil
		}
		current = existing
	}
	return false, nil
}
