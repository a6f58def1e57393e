package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes disposal workflow events to NATS for the
// platform notification service.
//
// Subject convention: notifications.am.<event_type>
// Event types: disposal_submitted, disposal_approved, disposal_rejected,
//              disposal_completed
//
// All publish operations are non-fatal. Errors are logged but never propagated
// to the caller, so notification failures never interrupt a disposal.
type NotificationPublisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	OrgID      string         `json:"org_id"`
	ActorID    string         `json:"actor_id"`
	WorkflowID string         `json:"workflow_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(nc *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nc: nc, log: log}
}

// PublishWorkflowEvent publishes one disposal workflow event.
func (p *NotificationPublisher) PublishWorkflowEvent(ctx context.Context, eventType, workflowID, orgID, actorID string, payload map[string]any) {
	if p.nc == nil {
		return
	}

	event := &NotificationEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OrgID:      orgID,
		ActorID:    actorID,
		WorkflowID: workflowID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.am.%s", eventType)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("workflow_id", workflowID).
			Msg("notification: failed to publish event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("workflow_id", workflowID).
		Msg("notification: event published")
}
