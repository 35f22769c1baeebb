package scylla

import (
	"context"
	"fmt"

	"carhistory/internal/models"
)

type auditEventRepository struct {
	client *ScyllaClient
}

func NewAuditEventRepository(client *ScyllaClient) AuditEventRepository {
	return &auditEventRepository{client: client}
}

// Append is insert-only. Nothing in the codebase updates or deletes rows in
// audit_events.
func (r *auditEventRepository) Append(ctx context.Context, e *models.AuditEvent) error {
	if err := r.client.Session.Query(`
		INSERT INTO audit_events (event_bucket, event_date, event_id, at, action, result, actor_user_id, target_id, reason_code, request_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventBucket, e.EventDate, e.EventID, e.At, e.Action, e.Result,
		e.ActorUserID, e.TargetID, e.ReasonCode, e.RequestID, e.MetadataRaw).
		WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}
