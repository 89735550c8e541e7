package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultAuditBufferSize     = 256
	defaultAuditPublishTimeout = 5 * time.Second
)

// AuditPublisher delivers one audit event to durable storage or a message bus.
type AuditPublisher interface {
	PublishAudit(ctx context.Context, event AuditEvent) error
}

// AuditOutboxDeps configures the outbox.
type AuditOutboxDeps struct {
	Publisher      AuditPublisher
	BufferSize     int
	PublishTimeout time.Duration
	Meter          metric.Meter
	IDGenerator    IDGenerator
	Clock          func() time.Time
	Logger         Logger
}

// AuditOutbox decouples audit emission from request handling. Emit never blocks: when the buffer is full the
// event is dropped, logged and counted.
type AuditOutbox struct {
	publisher AuditPublisher
	events    chan AuditEvent
	timeout   time.Duration
	newID     IDGenerator
	now       func() time.Time
	logger    Logger

	dropped   metric.Int64Counter
	published metric.Int64Counter
	drops     atomic.Int64

	mu      sync.RWMutex
	closed  bool
	started sync.Once
	done    chan struct{}
}

// NewAuditOutbox constructs an outbox. Call Start to begin draining.
func NewAuditOutbox(deps AuditOutboxDeps) (*AuditOutbox, error) {
	if deps.Publisher == nil {
		return nil, errors.New("audit outbox: publisher is required")
	}
	size := deps.BufferSize
	if size <= 0 {
		size = defaultAuditBufferSize
	}
	timeout := deps.PublishTimeout
	if timeout <= 0 {
		timeout = defaultAuditPublishTimeout
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("github.com/hanko-field/commerce/internal/services")
	}
	dropped, err := meter.Int64Counter("audit.outbox.dropped", metric.WithDescription("Audit events dropped because the outbox was full or closed"))
	if err != nil {
		return nil, err
	}
	published, err := meter.Int64Counter("audit.outbox.published", metric.WithDescription("Audit events handed to the publisher"))
	if err != nil {
		return nil, err
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &AuditOutbox{
		publisher: deps.Publisher,
		events:    make(chan AuditEvent, size),
		timeout:   timeout,
		newID:     newID,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		dropped:   dropped,
		published: published,
		done:      make(chan struct{}),
	}, nil
}

// Start launches the drainer goroutine once.
func (o *AuditOutbox) Start() {
	o.started.Do(func() {
		go o.drain()
	})
}

// Emit enqueues the event and reports whether it was accepted.
func (o *AuditOutbox) Emit(ctx context.Context, event AuditEvent) bool {
	if o == nil {
		return false
	}
	if event.ID == "" {
		event.ID = o.newID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = o.now()
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.drop(ctx, event, "closed")
		return false
	}
	select {
	case o.events <- event:
		return true
	default:
		o.drop(ctx, event, "buffer_full")
		return false
	}
}

// Dropped returns how many events were discarded since construction.
func (o *AuditOutbox) Dropped() int64 {
	return o.drops.Load()
}

// Close stops accepting events and waits for the buffer to drain or ctx to end.
func (o *AuditOutbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.events)
	}
	o.mu.Unlock()

	o.Start()
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *AuditOutbox) drain() {
	defer close(o.done)
	for event := range o.events {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		err := o.publisher.PublishAudit(ctx, event)
		cancel()
		if err != nil {
			o.logger(ctx, "audit.publish.failed", map[string]any{
				"eventId": event.ID,
				"action":  event.Action,
				"error":   err.Error(),
			})
			continue
		}
		o.published.Add(context.Background(), 1, metric.WithAttributes(attribute.String("action", event.Action)))
	}
}

func (o *AuditOutbox) drop(ctx context.Context, event AuditEvent, reason string) {
	o.drops.Add(1)
	o.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	o.logger(ctx, "audit.outbox.dropped", map[string]any{
		"eventId":   event.ID,
		"action":    event.Action,
		"targetRef": event.TargetRef,
		"reason":    reason,
	})
}
