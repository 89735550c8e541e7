package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
)

var fixtureNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type recordingAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *recordingAudit) Emit(_ context.Context, event AuditEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return true
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Action)
	}
	return out
}

type checkoutFixture struct {
	store        *memoryStore
	gateway      *fakeGateway
	audit        *recordingAudit
	prices       PriceAuthority
	payments     PaymentService
	materializer OrderMaterializer
	verifier     PaymentVerifier
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	store := newMemoryStore()
	gateway := newFakeGateway()
	audit := &recordingAudit{}
	clock := func() time.Time { return fixtureNow }

	prices, err := NewPriceAuthority(PriceAuthorityDeps{
		Products:      store,
		PromoCodes:    promoRepo{store},
		Carts:         store,
		Currency:      "inr",
		MinimumAmount: 100,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("new price authority: %v", err)
	}
	paymentSvc, err := NewPaymentService(PaymentServiceDeps{
		Prices:         prices,
		Gateway:        gateway,
		Records:        store,
		DesignRequests: designRepo{store},
		Provider:       "razorpay",
		Currency:       "INR",
		MinimumAmount:  100,
		Timeout:        50 * time.Millisecond,
		Clock:          clock,
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	counters, err := NewCounterService(CounterServiceDeps{Repository: &stubCounterRepository{}, Clock: clock})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}
	var seq atomic.Int64
	materializer, err := NewOrderMaterializer(OrderMaterializerDeps{
		Store:       store,
		Addresses:   store,
		Counters:    counters,
		Audit:       audit,
		IDGenerator: func() string { return fmt.Sprintf("ord_%03d", seq.Add(1)) },
		Clock:       clock,
	})
	if err != nil {
		t.Fatalf("new order materializer: %v", err)
	}
	verifier, err := NewPaymentVerifier(PaymentVerifierDeps{
		Records:        store,
		Orders:         orderRepo{store},
		DesignRequests: designRepo{store},
		Products:       store,
		Gateway:        gateway,
		Materializer:   materializer,
		Clock:          clock,
	})
	if err != nil {
		t.Fatalf("new payment verifier: %v", err)
	}

	return &checkoutFixture{
		store:        store,
		gateway:      gateway,
		audit:        audit,
		prices:       prices,
		payments:     paymentSvc,
		materializer: materializer,
		verifier:     verifier,
	}
}

func (f *checkoutFixture) seedProduct(id string, price, stock int64) {
	f.store.products[id] = domain.Product{
		ID:                id,
		Name:              "Product " + id,
		UnitPrice:         price,
		Currency:          "INR",
		StockQuantity:     stock,
		LowStockThreshold: 2,
		Availability:      domain.AvailabilityFor(stock, 2),
	}
}

func (f *checkoutFixture) seedPromo(promo domain.PromoCode) {
	if promo.MaxUses == 0 {
		promo.MaxUses = 100
	}
	f.store.promos[promo.ID] = promo
}

func (f *checkoutFixture) seedLockedDesign(id, userID string, amount int64) {
	f.store.designs[id] = domain.DesignRequest{
		ID:          id,
		UserID:      userID,
		Title:       "Wedding invitation",
		Status:      domain.DesignRequestStatusPaymentPending,
		PriceLocked: true,
		FinalAmount: int64Ptr(amount),
		CreatedAt:   fixtureNow.Add(-48 * time.Hour),
	}
}

func (f *checkoutFixture) seedAddress(userID, recipient string) {
	state := "Karnataka"
	f.store.addresses[userID] = domain.Address{
		ID:         "addr-" + userID,
		Recipient:  recipient,
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      &state,
		PostalCode: "560001",
		Country:    "IN",
		IsDefault:  true,
	}
}

func int64Ptr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
