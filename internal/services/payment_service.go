package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/payments"
	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	receiptNamespaceCart  = "cart"
	receiptNamespaceItem  = "item"
	receiptNamespaceDR    = "design"
)

// gatewayOrders abstracts payments.Manager for easier testing.
type gatewayOrders interface {
	CreateOrder(ctx context.Context, paymentCtx payments.PaymentContext, req payments.OrderRequest) (payments.GatewayOrder, error)
}

// PaymentServiceDeps wires the gateway adapter.
type PaymentServiceDeps struct {
	Prices         PriceAuthority
	Gateway        gatewayOrders
	Records        repositories.PaymentRecordRepository
	DesignRequests repositories.DesignRequestRepository
	Provider       string
	Currency       string
	MinimumAmount  int64
	Timeout        time.Duration
	Clock          func() time.Time
	Logger         Logger
}

type paymentService struct {
	prices   PriceAuthority
	gateway  gatewayOrders
	records  repositories.PaymentRecordRepository
	designs  repositories.DesignRequestRepository
	provider string
	currency string
	minimum  int64
	timeout  time.Duration
	now      func() time.Time
	logger   Logger
}

// NewPaymentService constructs the PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Prices == nil {
		return nil, errors.New("payment service: price authority is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}
	if deps.Records == nil {
		return nil, errors.New("payment service: payment record repository is required")
	}
	if deps.DesignRequests == nil {
		return nil, errors.New("payment service: design request repository is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errors.New("payment service: currency is required")
	}
	minimum := deps.MinimumAmount
	if minimum <= 0 {
		minimum = 1
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentService{
		prices:   deps.Prices,
		gateway:  deps.Gateway,
		records:  deps.Records,
		designs:  deps.DesignRequests,
		provider: strings.ToLower(strings.TrimSpace(deps.Provider)),
		currency: currency,
		minimum:  minimum,
		timeout:  timeout,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *paymentService) CreateCartPayment(ctx context.Context, cmd CreateCartPaymentCommand) (PaymentIntent, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PaymentIntent{}, ErrUnauthorized
	}
	mode := cmd.Mode
	if mode == "" {
		mode = CheckoutModeCart
	}

	charge, err := s.prices.Quote(ctx, QuoteCommand{
		Mode:        mode,
		UserID:      userID,
		PromoCodeID: cmd.PromoCodeID,
		ProductID:   cmd.ProductID,
		Quantity:    cmd.Quantity,
	})
	if err != nil {
		return PaymentIntent{}, err
	}

	source, sourceID, namespace := domain.PaymentSourceCart, userID, receiptNamespaceCart
	if mode == CheckoutModeSingleItem {
		source, sourceID, namespace = domain.PaymentSourceSingleItem, strings.TrimSpace(cmd.ProductID), receiptNamespaceItem
	}

	return s.open(ctx, pendingPayment{
		userID:         userID,
		source:         source,
		sourceID:       sourceID,
		receipt:        namespace + "_" + sourceID,
		charge:         charge,
		idempotencyKey: cmd.IdempotencyKey,
	})
}

func (s *paymentService) CreateDesignPayment(ctx context.Context, cmd CreateDesignPaymentCommand) (PaymentIntent, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PaymentIntent{}, ErrUnauthorized
	}
	requestID := strings.TrimSpace(cmd.DesignRequestID)
	if requestID == "" {
		return PaymentIntent{}, fmt.Errorf("%w: designRequestId is required", ErrValidation)
	}

	request, err := s.designs.FindByID(ctx, requestID)
	if err != nil {
		return PaymentIntent{}, translateRepositoryError("design_requests.find", err)
	}
	if request.UserID != userID {
		return PaymentIntent{}, fmt.Errorf("%w: design request belongs to another user", ErrForbidden)
	}
	amount, ok := request.PayableAmount()
	if !ok {
		return PaymentIntent{}, fmt.Errorf("%w: design request %s is %s (price locked: %t)", ErrPreconditionFailed, request.ID, request.Status, request.PriceLocked)
	}
	if amount < s.minimum {
		return PaymentIntent{}, fmt.Errorf("%w: final amount %d below minimum %d", ErrAmountTooSmall, amount, s.minimum)
	}

	title := strings.TrimSpace(request.Title)
	if title == "" {
		title = "Custom design " + request.ID
	}
	charge := Charge{
		Currency:    s.currency,
		Lines:       []domain.ChargeLine{{Name: title, Quantity: 1, UnitPrice: amount, Total: amount}},
		Subtotal:    amount,
		Total:       amount,
		AmountMinor: amount,
	}
	return s.open(ctx, pendingPayment{
		userID:         userID,
		source:         domain.PaymentSourceDesignRequest,
		sourceID:       request.ID,
		receipt:        receiptNamespaceDR + "_" + request.ID,
		charge:         charge,
		idempotencyKey: cmd.IdempotencyKey,
	})
}

type pendingPayment struct {
	userID         string
	source         domain.PaymentSource
	sourceID       string
	receipt        string
	charge         Charge
	idempotencyKey string
}

// open calls the gateway and persists the pending record before returning, so verification always finds it.
func (s *paymentService) open(ctx context.Context, p pendingPayment) (PaymentIntent, error) {
	gatewayCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order, err := s.gateway.CreateOrder(gatewayCtx, payments.PaymentContext{
		PreferredProvider: s.provider,
		Currency:          p.charge.Currency,
	}, payments.OrderRequest{
		Amount:   p.charge.AmountMinor,
		Currency: p.charge.Currency,
		Receipt:  payments.TruncateReceipt(p.receipt),
		Notes: map[string]string{
			"userId":     p.userID,
			"entityType": string(p.source),
			"entityId":   p.sourceID,
		},
		IdempotencyKey: p.idempotencyKey,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(gatewayCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: gateway timed out after %s", payments.ErrUpstream, s.timeout)
		}
		s.logger(ctx, "payment.gateway.failed", map[string]any{
			"source":   string(p.source),
			"sourceId": p.sourceID,
			"error":    err.Error(),
		})
		if errors.Is(err, payments.ErrUpstream) {
			return PaymentIntent{}, translateRepositoryError("gateway.create_order", err)
		}
		return PaymentIntent{}, fmt.Errorf("%w: gateway.create_order: %v", ErrUpstreamFailure, err)
	}

	now := s.now()
	record := domain.PaymentRecord{
		GatewayOrderID: order.ID,
		Provider:       order.Provider,
		Status:         domain.PaymentStatusPending,
		Source:         p.source,
		SourceID:       p.sourceID,
		UserID:         p.userID,
		Currency:       p.charge.Currency,
		Amount:         p.charge.AmountMinor,
		Subtotal:       p.charge.Subtotal,
		Discount:       p.charge.Discount,
		PromoCodeID:    p.charge.PromoCodeID,
		Lines:          append([]domain.ChargeLine(nil), p.charge.Lines...),
		Receipt:        payments.TruncateReceipt(p.receipt),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.records.Create(ctx, record); err != nil {
		s.logger(ctx, "payment.record.create_failed", map[string]any{
			"gatewayOrderId": order.ID,
			"error":          err.Error(),
		})
		return PaymentIntent{}, translateRepositoryError("payment_records.create", err)
	}

	s.logger(ctx, "payment.intent.created", map[string]any{
		"gatewayOrderId": order.ID,
		"provider":       order.Provider,
		"source":         string(p.source),
		"amount":         record.Amount,
	})

	return PaymentIntent{
		GatewayOrderID: order.ID,
		Provider:       order.Provider,
		KeyID:          order.KeyID,
		ClientSecret:   order.ClientSecret,
		Amount:         record.Amount,
		Currency:       record.Currency,
		Subtotal:       record.Subtotal,
		Discount:       record.Discount,
		Total:          p.charge.Total,
	}, nil
}
