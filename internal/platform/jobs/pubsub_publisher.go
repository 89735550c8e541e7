package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/hanko-field/commerce/internal/domain"
)

// PubSubAuditPublisher publishes audit events to a Pub/Sub topic.
type PubSubAuditPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

type auditMessage struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actorId,omitempty"`
	TargetRef  string         `json:"targetRef"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// NewPubSubAuditPublisher constructs a Pub/Sub backed audit publisher.
func NewPubSubAuditPublisher(topic *pubsub.Topic) (*PubSubAuditPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub audit publisher: topic is required")
	}
	return &PubSubAuditPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishAudit publishes the event and waits for the server acknowledgement.
func (p *PubSubAuditPublisher) PublishAudit(ctx context.Context, event domain.AuditEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub audit publisher: not initialised")
	}

	data, err := p.marshal(auditMessage{
		ID:         event.ID,
		Action:     event.Action,
		ActorID:    event.ActorID,
		TargetRef:  event.TargetRef,
		Metadata:   event.Metadata,
		OccurredAt: event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	attrs := make(map[string]string, 3)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "action", event.Action)
	setAttr(attrs, "targetRef", event.TargetRef)

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
