package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
)

func TestPriceAuthorityQuoteSingleItem(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.seedProduct("p-1", 500, 10)

	charge, err := fx.prices.Quote(context.Background(), QuoteCommand{
		Mode:      CheckoutModeSingleItem,
		UserID:    "user-1",
		ProductID: "p-1",
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if charge.Subtotal != 1000 || charge.Discount != 0 || charge.Total != 1000 || charge.AmountMinor != 1000 {
		t.Fatalf("unexpected charge %+v", charge)
	}
	if charge.Currency != "INR" {
		t.Fatalf("expected normalised currency, got %s", charge.Currency)
	}
	if len(charge.Lines) != 1 || charge.Lines[0].UnitPrice != 500 || charge.Lines[0].Total != 1000 {
		t.Fatalf("unexpected lines %+v", charge.Lines)
	}
}

func TestPriceAuthorityQuoteAppliesCappedPercentage(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.seedProduct("p-1", 500, 10)
	fx.seedPromo(domain.PromoCode{
		ID:                "promo-10",
		Code:              "TEN",
		DiscountType:      domain.DiscountTypePercentage,
		DiscountValue:     10,
		MaxDiscountAmount: int64Ptr(50),
		IsActive:          true,
		ExpiresAt:         timePtr(fixtureNow.Add(24 * time.Hour)),
	})

	charge, err := fx.prices.Quote(context.Background(), QuoteCommand{
		Mode:        CheckoutModeSingleItem,
		UserID:      "user-1",
		ProductID:   "p-1",
		Quantity:    2,
		PromoCodeID: "promo-10",
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if charge.Subtotal != 1000 || charge.Discount != 50 || charge.Total != 950 || charge.AmountMinor != 950 {
		t.Fatalf("unexpected charge %+v", charge)
	}
	if charge.PromoCodeID != "promo-10" {
		t.Fatalf("expected promo applied, got %q", charge.PromoCodeID)
	}
}

func TestPriceAuthorityIgnoresUnusablePromos(t *testing.T) {
	cases := []struct {
		name  string
		promo *domain.PromoCode
	}{
		{name: "missing"},
		{name: "inactive", promo: &domain.PromoCode{ID: "promo", DiscountType: domain.DiscountTypeFlat, DiscountValue: 100}},
		{name: "expired", promo: &domain.PromoCode{ID: "promo", DiscountType: domain.DiscountTypeFlat, DiscountValue: 100, IsActive: true, ExpiresAt: timePtr(fixtureNow)}},
		{name: "exhausted", promo: &domain.PromoCode{ID: "promo", DiscountType: domain.DiscountTypeFlat, DiscountValue: 100, IsActive: true, MaxUses: 3, UsedCount: 3}},
		{name: "below minimum order", promo: &domain.PromoCode{ID: "promo", DiscountType: domain.DiscountTypeFlat, DiscountValue: 100, IsActive: true, MinOrderAmount: int64Ptr(5000)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newCheckoutFixture(t)
			fx.seedProduct("p-1", 500, 10)
			if tc.promo != nil {
				fx.seedPromo(*tc.promo)
			}
			charge, err := fx.prices.Quote(context.Background(), QuoteCommand{
				Mode:        CheckoutModeSingleItem,
				UserID:      "user-1",
				ProductID:   "p-1",
				Quantity:    2,
				PromoCodeID: "promo",
			})
			if err != nil {
				t.Fatalf("promo problems must not fail the quote: %v", err)
			}
			if charge.Discount != 0 || charge.Total != 1000 || charge.PromoCodeID != "" {
				t.Fatalf("expected promo ignored, got %+v", charge)
			}
		})
	}
}

func TestPriceAuthorityRejectsStockAndInput(t *testing.T) {
	cases := []struct {
		name   string
		price  int64
		stock  int64
		cmd    QuoteCommand
		expect error
	}{
		{name: "anonymous", price: 500, stock: 10, cmd: QuoteCommand{Mode: CheckoutModeSingleItem, ProductID: "p-1", Quantity: 1}, expect: ErrUnauthorized},
		{name: "exceeds stock", price: 500, stock: 1, cmd: QuoteCommand{Mode: CheckoutModeSingleItem, UserID: "u", ProductID: "p-1", Quantity: 2}, expect: ErrInsufficientStock},
		{name: "out of stock", price: 500, stock: 0, cmd: QuoteCommand{Mode: CheckoutModeSingleItem, UserID: "u", ProductID: "p-1", Quantity: 1}, expect: ErrInsufficientStock},
		{name: "unknown product", price: 500, stock: 10, cmd: QuoteCommand{Mode: CheckoutModeSingleItem, UserID: "u", ProductID: "p-9", Quantity: 1}, expect: ErrNotFound},
		{name: "zero quantity", price: 500, stock: 10, cmd: QuoteCommand{Mode: CheckoutModeSingleItem, UserID: "u", ProductID: "p-1"}, expect: ErrValidation},
		{name: "below gateway minimum", price: 50, stock: 10, cmd: QuoteCommand{Mode: CheckoutModeSingleItem, UserID: "u", ProductID: "p-1", Quantity: 1}, expect: ErrAmountTooSmall},
		{name: "unknown mode", price: 500, stock: 10, cmd: QuoteCommand{Mode: "wishlist", UserID: "u"}, expect: ErrValidation},
		{name: "missing cart", price: 500, stock: 10, cmd: QuoteCommand{Mode: CheckoutModeCart, UserID: "u"}, expect: ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newCheckoutFixture(t)
			fx.seedProduct("p-1", tc.price, tc.stock)
			if _, err := fx.prices.Quote(context.Background(), tc.cmd); !errors.Is(err, tc.expect) {
				t.Fatalf("expected %v, got %v", tc.expect, err)
			}
		})
	}
}

func TestPriceAuthorityRejectsFullyDiscountedTotal(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.seedProduct("p-1", 500, 10)
	fx.seedPromo(domain.PromoCode{ID: "free", DiscountType: domain.DiscountTypeFlat, DiscountValue: 10_000, IsActive: true})

	_, err := fx.prices.Quote(context.Background(), QuoteCommand{
		Mode:        CheckoutModeSingleItem,
		UserID:      "user-1",
		ProductID:   "p-1",
		Quantity:    1,
		PromoCodeID: "free",
	})
	if !errors.Is(err, ErrAmountTooSmall) {
		t.Fatalf("expected ErrAmountTooSmall, got %v", err)
	}
}

func TestPriceAuthorityQuoteCartMergesLines(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.seedProduct("p-1", 500, 10)
	fx.seedProduct("p-2", 250, 10)
	fx.store.carts["user-1"] = domain.Cart{ID: "user-1", UserID: "user-1", Lines: []domain.CartLine{
		{ProductID: "p-2", Quantity: 1},
		{ProductID: "p-1", Quantity: 1},
		{ProductID: "p-2", Quantity: 2},
		{ProductID: "p-1", Quantity: 0},
	}}

	charge, err := fx.prices.Quote(context.Background(), QuoteCommand{Mode: CheckoutModeCart, UserID: "user-1"})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if len(charge.Lines) != 2 {
		t.Fatalf("expected merged lines, got %+v", charge.Lines)
	}
	if charge.Lines[0].ProductID != "p-1" || charge.Lines[0].Quantity != 1 || charge.Lines[1].ProductID != "p-2" || charge.Lines[1].Quantity != 3 {
		t.Fatalf("unexpected lines %+v", charge.Lines)
	}
	if charge.Subtotal != 1250 || charge.Total != 1250 {
		t.Fatalf("unexpected totals %+v", charge)
	}
}

func TestPriceAuthorityRejectsEmptyCart(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.store.carts["user-1"] = domain.Cart{ID: "user-1", UserID: "user-1"}
	if _, err := fx.prices.Quote(context.Background(), QuoteCommand{Mode: CheckoutModeCart, UserID: "user-1"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestComputeDiscount(t *testing.T) {
	cases := []struct {
		name     string
		promo    domain.PromoCode
		subtotal int64
		expect   int64
	}{
		{name: "percentage", promo: domain.PromoCode{DiscountType: domain.DiscountTypePercentage, DiscountValue: 10}, subtotal: 1000, expect: 100},
		{name: "percentage floors", promo: domain.PromoCode{DiscountType: domain.DiscountTypePercentage, DiscountValue: 15}, subtotal: 333, expect: 49},
		{name: "percentage capped", promo: domain.PromoCode{DiscountType: domain.DiscountTypePercentage, DiscountValue: 10, MaxDiscountAmount: int64Ptr(50)}, subtotal: 1000, expect: 50},
		{name: "percentage over 100", promo: domain.PromoCode{DiscountType: domain.DiscountTypePercentage, DiscountValue: 150}, subtotal: 1000, expect: 1000},
		{name: "flat", promo: domain.PromoCode{DiscountType: domain.DiscountTypeFlat, DiscountValue: 300}, subtotal: 1000, expect: 300},
		{name: "flat above subtotal", promo: domain.PromoCode{DiscountType: domain.DiscountTypeFlat, DiscountValue: 5000}, subtotal: 1000, expect: 1000},
		{name: "negative flat", promo: domain.PromoCode{DiscountType: domain.DiscountTypeFlat, DiscountValue: -10}, subtotal: 1000, expect: 0},
		{name: "unknown type", promo: domain.PromoCode{DiscountType: "bogo", DiscountValue: 10}, subtotal: 1000, expect: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputeDiscount(tc.promo, tc.subtotal); got != tc.expect {
				t.Fatalf("expected %d, got %d", tc.expect, got)
			}
		})
	}
}

func TestComputeDiscountStaysWithinSubtotal(t *testing.T) {
	promos := []domain.PromoCode{
		{DiscountType: domain.DiscountTypePercentage, DiscountValue: 37},
		{DiscountType: domain.DiscountTypePercentage, DiscountValue: 250, MaxDiscountAmount: int64Ptr(400)},
		{DiscountType: domain.DiscountTypeFlat, DiscountValue: 777},
		{DiscountType: domain.DiscountTypeFlat, DiscountValue: -5},
	}
	for subtotal := int64(0); subtotal <= 2000; subtotal += 7 {
		for _, promo := range promos {
			discount := ComputeDiscount(promo, subtotal)
			if discount < 0 || discount > subtotal {
				t.Fatalf("discount %d out of range for subtotal %d and promo %+v", discount, subtotal, promo)
			}
		}
	}
}
