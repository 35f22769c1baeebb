package audit

import (
	"context"
	"encoding/json"

	"carhistory/internal/client"
	"carhistory/internal/models"
)

// Publisher streams audit events to downstream consumers.
type Publisher interface {
	PublishEvent(ctx context.Context, e *models.AuditEvent) error
}

// KafkaPublisher emits one JSON message per event, keyed by action so
// consumers of a single action see its events in partition order.
type KafkaPublisher struct {
	producer *client.KafkaProducer
}

func NewKafkaPublisher(p *client.KafkaProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: p}
}

func (p *KafkaPublisher) PublishEvent(ctx context.Context, e *models.AuditEvent) error {
	payload, err := json.Marshal(map[string]any{
		"event_id":      e.EventID,
		"at":            e.At,
		"action":        e.Action,
		"result":        e.Result,
		"actor_user_id": e.ActorUserID,
		"target_id":     e.TargetID,
		"reason_code":   e.ReasonCode,
		"request_id":    e.RequestID,
		"metadata":      e.MetadataRaw,
	})
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, []byte(e.Action), payload)
}
