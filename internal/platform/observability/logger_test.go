package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hanko-field/commerce/internal/platform/requestctx"
)

func TestServiceLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := ServiceLogger(zap.New(core))

	log(context.Background(), "payment.intent.created", map[string]any{"amount": 100, "provider": "razorpay"})
	log(context.Background(), "payment.gateway.failed", map[string]any{"error": "timeout"})
	log(context.Background(), "audit.outbox.dropped", nil)

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[1].Level != zapcore.WarnLevel || entries[2].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels %v %v %v", entries[0].Level, entries[1].Level, entries[2].Level)
	}
	fields := entries[0].ContextMap()
	if fields["event"] != "payment.intent.created" || fields["provider"] != "razorpay" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.DebugLevel)
	requestCore, requestLogs := observer.New(zapcore.DebugLevel)
	log := ServiceLogger(zap.New(fallbackCore))

	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))
	log(ctx, "order.materialize.failed", map[string]any{"gatewayOrderId": "order_1"})

	if fallbackLogs.Len() != 0 || requestLogs.Len() != 1 {
		t.Fatalf("expected request logger to be used, fallback=%d request=%d", fallbackLogs.Len(), requestLogs.Len())
	}
}

func TestNewLoggerDefaultsLevel(t *testing.T) {
	logger, err := NewLogger("nonsense")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) || logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected info level default")
	}
}
