package scylla

import (
	"context"
	"fmt"

	"carhistory/internal/models"
)

type consentRepository struct {
	client *ScyllaClient
}

func NewConsentRepository(client *ScyllaClient) ConsentRepository {
	return &consentRepository{client: client}
}

// Record upserts the consent row per (user, doc_type). Re-acceptance of a
// newer version overwrites the old acceptance in place.
func (r *consentRepository) Record(ctx context.Context, c *models.Consent) error {
	if err := r.client.Session.Query(`
		INSERT INTO consents (user_id, doc_type, version, ip_hmac, ua_hmac, accepted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.UserID, c.DocType, c.Version, c.IPHMAC, c.UAHMAC, c.AcceptedAt).
		WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to record consent: %w", err)
	}
	return nil
}
