package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/hanko-field/commerce/internal/domain"
)

func TestPubSubAuditPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "audit-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubAuditPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubAuditPublisher: %v", err)
	}

	event := domain.AuditEvent{
		ID:         "aud_01",
		Action:     "order.materialized",
		ActorID:    "user-1",
		TargetRef:  "/orders/ord_1",
		Metadata:   map[string]any{"orderNumber": "HF-2025-000001"},
		OccurredAt: time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	if err := publisher.PublishAudit(ctx, event); err != nil {
		t.Fatalf("PublishAudit: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload map[string]any
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["action"] != "order.materialized" || payload["targetRef"] != "/orders/ord_1" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["eventId"]; attr != "aud_01" {
		t.Fatalf("expected eventId attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["actorId"]; ok {
		t.Fatalf("actor must not leak into attributes")
	}
}

func TestNewPubSubAuditPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubAuditPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
