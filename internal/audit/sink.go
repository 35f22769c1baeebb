package audit

import (
	"context"

	"carhistory/internal/client"
	"carhistory/internal/models"
)

// Sink is a secondary, analytics-oriented destination for audit events.
type Sink interface {
	Write(ctx context.Context, e *models.AuditEvent) error
}

// ClickHouseSink writes events into a fixed-schema analytics table. Columns
// are explicit; a schema change here is a deliberate, versioned decision.
type ClickHouseSink struct {
	client *client.ClickHouseClient
	table  string
}

func NewClickHouseSink(c *client.ClickHouseClient, table string) *ClickHouseSink {
	if table == "" {
		table = "audit_events"
	}
	return &ClickHouseSink{client: c, table: table}
}

func (s *ClickHouseSink) Write(ctx context.Context, e *models.AuditEvent) error {
	return s.client.Exec(ctx, `
		INSERT INTO `+s.table+`
		(event_id, event_date, at, action, result, actor_user_id, target_id, reason_code, request_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.EventDate, e.At, e.Action, e.Result,
		e.ActorUserID, e.TargetID, e.ReasonCode, e.RequestID, e.MetadataRaw)
}
