package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeProvider struct {
	lastOp    string
	lastOrder OrderRequest
	order     GatewayOrder
	err       error
}

func (f *fakeProvider) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	f.lastOp = "create"
	f.lastOrder = req
	return f.order, f.err
}

func (f *fakeProvider) VerifyPayment(ctx context.Context, req VerifyRequest) error {
	f.lastOp = "verify"
	return f.err
}

func TestManagerCreateOrderUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{order: GatewayOrder{ID: "pi_1"}}
	razorpay := &fakeProvider{order: GatewayOrder{ID: "order_1"}}

	mgr, err := NewManager(map[string]Provider{
		"stripe":   stripe,
		"Razorpay": razorpay,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	order, err := mgr.CreateOrder(ctx, PaymentContext{PreferredProvider: "razorpay"}, OrderRequest{Currency: "INR", Amount: 100})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Provider != "razorpay" {
		t.Fatalf("expected provider razorpay, got %q", order.Provider)
	}
	if razorpay.lastOp != "create" || stripe.lastOp != "" {
		t.Fatalf("expected only razorpay to be called")
	}
}

func TestManagerRoutesByCurrency(t *testing.T) {
	stripe := &fakeProvider{}
	razorpay := &fakeProvider{}
	mgr, err := NewManager(
		map[string]Provider{"stripe": stripe, "razorpay": razorpay},
		WithCurrencyRoutes(map[string]string{"inr": "razorpay"}),
		WithDefaultProvider("stripe"),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := mgr.CreateOrder(context.Background(), PaymentContext{Currency: "INR"}, OrderRequest{}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if razorpay.lastOp != "create" {
		t.Fatalf("expected currency route to razorpay")
	}
	if _, err := mgr.CreateOrder(context.Background(), PaymentContext{Currency: "USD"}, OrderRequest{}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if stripe.lastOp != "create" {
		t.Fatalf("expected default provider stripe")
	}
}

func TestManagerRejectsUnknownPreferredProvider(t *testing.T) {
	mgr, err := NewManager(map[string]Provider{"razorpay": &fakeProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	err = mgr.VerifyPayment(context.Background(), "paypal", VerifyRequest{})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerTruncatesReceipt(t *testing.T) {
	provider := &fakeProvider{}
	mgr, err := NewManager(map[string]Provider{"razorpay": provider})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	long := "design_" + strings.Repeat("x", 60)
	if _, err := mgr.CreateOrder(context.Background(), PaymentContext{}, OrderRequest{Receipt: long}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if got := provider.lastOrder.Receipt; len(got) != MaxReceiptLength || !strings.HasPrefix(got, "design_") {
		t.Fatalf("unexpected receipt %q", got)
	}
}

func TestManagerPropagatesProviderErrors(t *testing.T) {
	mgr, err := NewManager(map[string]Provider{"razorpay": &fakeProvider{err: ErrUpstream}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := mgr.CreateOrder(context.Background(), PaymentContext{}, OrderRequest{}); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestNewManagerValidatesRegistrations(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error for empty providers")
	}
	if _, err := NewManager(map[string]Provider{" ": &fakeProvider{}}); err == nil {
		t.Fatalf("expected error for blank key")
	}
}

func TestTruncateReceiptKeepsRunesWhole(t *testing.T) {
	receipt := strings.Repeat("a", 39) + "é"
	got := TruncateReceipt(receipt)
	if got != strings.Repeat("a", 39) {
		t.Fatalf("unexpected truncation %q", got)
	}
}
