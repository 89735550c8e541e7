package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

// PriceAuthorityDeps wires the repositories and gateway constraints used to price a checkout.
type PriceAuthorityDeps struct {
	Products   repositories.ProductRepository
	PromoCodes repositories.PromoCodeRepository
	Carts      repositories.CartRepository
	Currency   string
	// MinimumAmount is the smallest chargeable total in minor units.
	MinimumAmount int64
	Clock         func() time.Time
	Logger        Logger
}

type priceAuthority struct {
	products repositories.ProductRepository
	promos   repositories.PromoCodeRepository
	carts    repositories.CartRepository
	currency string
	minimum  int64
	clock    func() time.Time
	logger   Logger
}

// NewPriceAuthority constructs the PriceAuthority.
func NewPriceAuthority(deps PriceAuthorityDeps) (PriceAuthority, error) {
	if deps.Products == nil {
		return nil, errors.New("price authority: product repository is required")
	}
	if deps.PromoCodes == nil {
		return nil, errors.New("price authority: promo code repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("price authority: cart repository is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errors.New("price authority: currency is required")
	}
	minimum := deps.MinimumAmount
	if minimum <= 0 {
		minimum = 1
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &priceAuthority{
		products: deps.Products,
		promos:   deps.PromoCodes,
		carts:    deps.Carts,
		currency: currency,
		minimum:  minimum,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (p *priceAuthority) Quote(ctx context.Context, cmd QuoteCommand) (Charge, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Charge{}, ErrUnauthorized
	}

	lines, err := p.requestedLines(ctx, userID, cmd)
	if err != nil {
		return Charge{}, err
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := p.products.FindByIDs(ctx, ids)
	if err != nil {
		return Charge{}, translateRepositoryError("products.find", err)
	}

	charge := Charge{Currency: p.currency, Lines: make([]domain.ChargeLine, 0, len(lines))}
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return Charge{}, fmt.Errorf("%w: product %s", ErrNotFound, line.ProductID)
		}
		if product.Availability == domain.AvailabilityOutOfStock || product.StockQuantity < line.Quantity {
			return Charge{}, fmt.Errorf("%w: product %s has %d, requested %d", ErrInsufficientStock, product.ID, product.StockQuantity, line.Quantity)
		}
		total := product.UnitPrice * line.Quantity
		charge.Lines = append(charge.Lines, domain.ChargeLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.UnitPrice,
			Total:     total,
		})
		charge.Subtotal += total
	}

	if promoID := strings.TrimSpace(cmd.PromoCodeID); promoID != "" {
		discount, applied := p.promoDiscount(ctx, promoID, charge.Subtotal)
		charge.Discount = discount
		if applied {
			charge.PromoCodeID = promoID
		}
	}

	charge.Total = charge.Subtotal - charge.Discount
	charge.AmountMinor = charge.Total
	if charge.AmountMinor < p.minimum {
		return Charge{}, fmt.Errorf("%w: total %d below minimum %d %s", ErrAmountTooSmall, charge.AmountMinor, p.minimum, p.currency)
	}
	return charge, nil
}

func (p *priceAuthority) requestedLines(ctx context.Context, userID string, cmd QuoteCommand) ([]domain.CartLine, error) {
	switch cmd.Mode {
	case CheckoutModeSingleItem:
		productID := strings.TrimSpace(cmd.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: productId is required", ErrValidation)
		}
		if cmd.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		return []domain.CartLine{{ProductID: productID, Quantity: cmd.Quantity}}, nil
	case CheckoutModeCart:
		cart, err := p.carts.GetCart(ctx, userID)
		if err != nil {
			if errors.Is(translateRepositoryError("carts.get", err), ErrNotFound) {
				return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
			}
			return nil, translateRepositoryError("carts.get", err)
		}
		lines := mergeCartLines(cart.Lines)
		if len(lines) == 0 {
			return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
		}
		return lines, nil
	default:
		return nil, fmt.Errorf("%w: unknown checkout mode %q", ErrValidation, cmd.Mode)
	}
}

// promoDiscount fails open: an unusable promo yields zero discount instead of an error.
func (p *priceAuthority) promoDiscount(ctx context.Context, promoID string, subtotal int64) (int64, bool) {
	promo, err := p.promos.FindByID(ctx, promoID)
	if err != nil {
		p.logger(ctx, "price.promo.lookup_failed", map[string]any{"promoCodeId": promoID, "error": err.Error()})
		return 0, false
	}
	if !promo.Redeemable(p.clock()) {
		p.logger(ctx, "price.promo.ignored", map[string]any{"promoCodeId": promoID, "reason": "not_redeemable"})
		return 0, false
	}
	if promo.MinOrderAmount != nil && subtotal < *promo.MinOrderAmount {
		p.logger(ctx, "price.promo.ignored", map[string]any{"promoCodeId": promoID, "reason": "below_minimum"})
		return 0, false
	}
	return ComputeDiscount(promo, subtotal), true
}

// ComputeDiscount applies the promo rule to subtotal and clamps the result to [0, subtotal].
func ComputeDiscount(promo domain.PromoCode, subtotal int64) int64 {
	var discount int64
	switch promo.DiscountType {
	case domain.DiscountTypePercentage:
		discount = subtotal * promo.DiscountValue / 100
		if promo.MaxDiscountAmount != nil && discount > *promo.MaxDiscountAmount {
			discount = *promo.MaxDiscountAmount
		}
	case domain.DiscountTypeFlat:
		discount = promo.DiscountValue
	}
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}

func mergeCartLines(lines []domain.CartLine) []domain.CartLine {
	totals := make(map[string]int64, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" || line.Quantity <= 0 {
			continue
		}
		totals[id] += line.Quantity
	}
	merged := make([]domain.CartLine, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, domain.CartLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged
}
