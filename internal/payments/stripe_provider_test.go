package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type fakeIntents struct {
	created *stripe.PaymentIntentParams
	intent  *stripe.PaymentIntent
	err     error
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.created = params
	return f.intent, f.err
}

func (f *fakeIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return f.intent, f.err
}

func newStripeForTest(t *testing.T, intents *fakeIntents) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		Intents:        intents,
		PublishableKey: "pk_test",
		Clock:          func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new stripe provider: %v", err)
	}
	return provider
}

func TestStripeCreateOrder(t *testing.T) {
	intents := &fakeIntents{intent: &stripe.PaymentIntent{
		ID:           "pi_123",
		Amount:       95000,
		Currency:     stripe.Currency("inr"),
		ClientSecret: "pi_123_secret",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}}
	provider := newStripeForTest(t, intents)

	order, err := provider.CreateOrder(context.Background(), OrderRequest{
		Amount:         95000,
		Currency:       "INR",
		Receipt:        "cart_user-1",
		Notes:          map[string]string{"userId": "user-1"},
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "pi_123" || order.ClientSecret != "pi_123_secret" || order.KeyID != "pk_test" || order.Currency != "INR" {
		t.Fatalf("unexpected order %+v", order)
	}
	if got := *intents.created.Currency; got != "inr" {
		t.Fatalf("expected lowercase currency, got %q", got)
	}
	if intents.created.Metadata["receipt"] != "cart_user-1" || intents.created.Metadata["userId"] != "user-1" {
		t.Fatalf("unexpected metadata %v", intents.created.Metadata)
	}
}

func TestStripeCreateOrderErrorIsUpstream(t *testing.T) {
	provider := newStripeForTest(t, &fakeIntents{err: errors.New("connection reset")})
	if _, err := provider.CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"}); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestStripeVerifyPayment(t *testing.T) {
	succeeded := &stripe.PaymentIntent{
		ID:           "pi_1",
		Amount:       2500,
		Currency:     stripe.Currency("inr"),
		ClientSecret: "pi_1_secret",
		Status:       stripe.PaymentIntentStatusSucceeded,
		LatestCharge: &stripe.Charge{ID: "ch_1"},
	}
	provider := newStripeForTest(t, &fakeIntents{intent: succeeded})

	ok := VerifyRequest{GatewayOrderID: "pi_1", GatewayPaymentID: "ch_1", Signature: "pi_1_secret", ExpectedAmount: 2500, Currency: "INR"}
	if err := provider.VerifyPayment(context.Background(), ok); err != nil {
		t.Fatalf("expected verification to pass, got %v", err)
	}

	bad := ok
	bad.Signature = "forged"
	if err := provider.VerifyPayment(context.Background(), bad); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	wrongAmount := ok
	wrongAmount.ExpectedAmount = 9999
	if err := provider.VerifyPayment(context.Background(), wrongAmount); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected amount mismatch to fail, got %v", err)
	}
}

func TestStripeVerifyPaymentIncomplete(t *testing.T) {
	provider := newStripeForTest(t, &fakeIntents{intent: &stripe.PaymentIntent{
		ID:           "pi_2",
		ClientSecret: "s",
		Status:       stripe.PaymentIntentStatusProcessing,
	}})
	err := provider.VerifyPayment(context.Background(), VerifyRequest{GatewayOrderID: "pi_2", GatewayPaymentID: "pi_2", Signature: "s"})
	if !errors.Is(err, ErrPaymentIncomplete) {
		t.Fatalf("expected ErrPaymentIncomplete, got %v", err)
	}
}
