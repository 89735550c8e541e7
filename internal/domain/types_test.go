package domain

import (
	"testing"
	"time"
)

func TestAvailabilityFor(t *testing.T) {
	cases := []struct {
		quantity int64
		min      int64
		expect   Availability
	}{
		{quantity: -1, min: 5, expect: AvailabilityOutOfStock},
		{quantity: 0, min: 5, expect: AvailabilityOutOfStock},
		{quantity: 1, min: 5, expect: AvailabilityLowStock},
		{quantity: 5, min: 5, expect: AvailabilityLowStock},
		{quantity: 6, min: 5, expect: AvailabilityAvailable},
		{quantity: 1, min: 0, expect: AvailabilityAvailable},
	}
	for _, tc := range cases {
		if got := AvailabilityFor(tc.quantity, tc.min); got != tc.expect {
			t.Fatalf("AvailabilityFor(%d, %d) = %s, want %s", tc.quantity, tc.min, got, tc.expect)
		}
	}
}

func TestPromoCodeRedeemable(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	cases := []struct {
		name   string
		promo  PromoCode
		expect bool
	}{
		{name: "active", promo: PromoCode{IsActive: true, MaxUses: 1}, expect: true},
		{name: "inactive", promo: PromoCode{MaxUses: 1}},
		{name: "expires later", promo: PromoCode{IsActive: true, MaxUses: 1, ExpiresAt: &later}, expect: true},
		{name: "expires now", promo: PromoCode{IsActive: true, MaxUses: 1, ExpiresAt: &now}},
		{name: "used up", promo: PromoCode{IsActive: true, MaxUses: 2, UsedCount: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.promo.Redeemable(now); got != tc.expect {
				t.Fatalf("expected %t, got %t", tc.expect, got)
			}
		})
	}
}

func TestDesignRequestPayableAmount(t *testing.T) {
	amount := int64(2500)
	request := DesignRequest{Status: DesignRequestStatusPaymentPending, PriceLocked: true, FinalAmount: &amount}
	if got, ok := request.PayableAmount(); !ok || got != 2500 {
		t.Fatalf("expected payable 2500, got %d %t", got, ok)
	}
	request.Status = DesignRequestStatusFinalQuotationConfirmed
	if _, ok := request.PayableAmount(); ok {
		t.Fatalf("only payment_pending requests are payable")
	}
}

func TestAddressCloneDoesNotAlias(t *testing.T) {
	state := "Kerala"
	original := Address{City: "Kochi", State: &state}
	clone := original.Clone()
	*original.State = "Goa"
	if clone.State == nil || *clone.State != "Kerala" {
		t.Fatalf("clone aliased original state: %v", clone.State)
	}
}
