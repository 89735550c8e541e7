package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubAuditPublisher struct {
	mu      sync.Mutex
	events  []AuditEvent
	failFor map[string]bool
	release chan struct{}
}

func (s *stubAuditPublisher) PublishAudit(ctx context.Context, event AuditEvent) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[event.Action] {
		return errors.New("publish failed")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubAuditPublisher) published() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

func TestAuditOutboxPublishesAndDrainsOnClose(t *testing.T) {
	publisher := &stubAuditPublisher{failFor: map[string]bool{"broken": true}}
	var mu sync.Mutex
	var logged []string
	outbox, err := NewAuditOutbox(AuditOutboxDeps{
		Publisher:   publisher,
		IDGenerator: func() string { return "evt-1" },
		Clock:       func() time.Time { return fixtureNow },
		Logger: func(_ context.Context, event string, _ map[string]any) {
			mu.Lock()
			logged = append(logged, event)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("new outbox: %v", err)
	}
	outbox.Start()

	for _, action := range []string{"order.materialized", "broken", "raw_material.restocked"} {
		if !outbox.Emit(context.Background(), AuditEvent{Action: action}) {
			t.Fatalf("emit %s rejected", action)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := outbox.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := publisher.published()
	if len(events) != 2 || events[0].Action != "order.materialized" || events[1].Action != "raw_material.restocked" {
		t.Fatalf("unexpected published events %+v", events)
	}
	if events[0].ID != "evt-1" || !events[0].OccurredAt.Equal(fixtureNow) {
		t.Fatalf("expected id and timestamp filled, got %+v", events[0])
	}
	mu.Lock()
	defer mu.Unlock()
	if len(logged) != 1 || logged[0] != "audit.publish.failed" {
		t.Fatalf("expected one publish failure log, got %v", logged)
	}
}

func TestAuditOutboxDropsWhenFull(t *testing.T) {
	publisher := &stubAuditPublisher{}
	outbox, err := NewAuditOutbox(AuditOutboxDeps{Publisher: publisher, BufferSize: 1})
	if err != nil {
		t.Fatalf("new outbox: %v", err)
	}

	if !outbox.Emit(context.Background(), AuditEvent{Action: "first"}) {
		t.Fatalf("first emit should be buffered")
	}
	done := make(chan bool, 1)
	go func() {
		done <- outbox.Emit(context.Background(), AuditEvent{Action: "second"})
	}()
	select {
	case accepted := <-done:
		if accepted {
			t.Fatalf("expected second emit to be dropped")
		}
	case <-time.After(time.Second):
		t.Fatalf("emit blocked on a full buffer")
	}
	if outbox.Dropped() != 1 {
		t.Fatalf("expected one drop, got %d", outbox.Dropped())
	}

	if err := outbox.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if outbox.Emit(context.Background(), AuditEvent{Action: "late"}) {
		t.Fatalf("emit after close must be rejected")
	}
	if outbox.Dropped() != 2 {
		t.Fatalf("expected two drops, got %d", outbox.Dropped())
	}
	if events := publisher.published(); len(events) != 1 || events[0].Action != "first" {
		t.Fatalf("expected buffered event drained, got %+v", events)
	}
}

func TestAuditOutboxCloseHonoursContext(t *testing.T) {
	publisher := &stubAuditPublisher{release: make(chan struct{})}
	outbox, err := NewAuditOutbox(AuditOutboxDeps{Publisher: publisher})
	if err != nil {
		t.Fatalf("new outbox: %v", err)
	}
	outbox.Start()
	outbox.Emit(context.Background(), AuditEvent{Action: "slow"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := outbox.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(publisher.release)
}

func TestNewAuditOutboxRequiresPublisher(t *testing.T) {
	if _, err := NewAuditOutbox(AuditOutboxDeps{}); err == nil {
		t.Fatalf("expected error without publisher")
	}
}
