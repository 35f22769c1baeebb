package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carhistory/internal/bucketing"
	"carhistory/internal/models"
	"carhistory/internal/redact"
	"carhistory/internal/repository/scylla"
	"carhistory/internal/util"
)

// Entry is what callers record. Actor and target are identifiers, never
// emails or tokens; metadata is filtered structurally before persistence.
type Entry struct {
	Action      string
	Result      string
	ActorUserID string
	TargetID    string
	ReasonCode  string
	RequestID   string
	Metadata    map[string]any
}

// Recorder appends decision events to the audit trail.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Trail is the production Recorder. The Scylla append is the source of
// truth; the sink and publisher are best-effort fan-out and their failures
// are logged, never propagated.
type Trail struct {
	repo      scylla.AuditEventRepository
	bucketing *bucketing.BucketingManager
	sink      Sink
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewTrail(repo scylla.AuditEventRepository, bm *bucketing.BucketingManager, sink Sink, publisher Publisher, logger *zap.Logger) *Trail {
	return &Trail{
		repo:      repo,
		bucketing: bm,
		sink:      sink,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (t *Trail) Record(ctx context.Context, e Entry) error {
	eventID := uuid.New().String()
	at := t.now().UTC()

	event := &models.AuditEvent{
		EventBucket: t.bucketing.GetEventBucket(eventID),
		EventDate:   t.bucketing.GetDateBucket(at),
		EventID:     eventID,
		At:          at,
		Action:      e.Action,
		Result:      e.Result,
		ActorUserID: e.ActorUserID,
		TargetID:    e.TargetID,
		ReasonCode:  e.ReasonCode,
		RequestID:   e.RequestID,
		Metadata:    filterMetadata(e.Metadata),
	}
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			t.logger.Error("failed to marshal audit metadata",
				zap.String("action", e.Action), zap.Error(err))
		} else {
			event.MetadataRaw = string(raw)
		}
	}

	if err := t.repo.Append(ctx, event); err != nil {
		t.logger.Error("failed to append audit event",
			zap.String("action", e.Action),
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return err
	}

	if t.sink != nil {
		if err := t.sink.Write(ctx, event); err != nil {
			t.logger.Warn("audit sink write failed",
				zap.String("event_id", eventID), zap.Error(err))
		}
	}
	if t.publisher != nil {
		if err := t.publisher.PublishEvent(ctx, event); err != nil {
			t.logger.Warn("audit publish failed",
				zap.String("event_id", eventID), zap.Error(err))
		}
	}
	return nil
}

// filterMetadata drops any metadata key with a PII or secret shaped name.
// The filter lives here, inside the trail, so no caller can bypass it.
func filterMetadata(md map[string]any) map[string]any {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		if redact.Denied(k) {
			util.Warn("dropped denylisted audit metadata key", zap.String("key", k))
			continue
		}
		out[k] = v
	}
	return out
}
