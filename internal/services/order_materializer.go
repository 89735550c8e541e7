package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

// OrderMaterializerDeps wires the collaborators that commit an order.
type OrderMaterializerDeps struct {
	Store       repositories.MaterializationRepository
	Addresses   repositories.AddressRepository
	Counters    CounterService
	Audit       AuditSink
	IDGenerator IDGenerator
	Clock       func() time.Time
	Logger      Logger
}

type orderMaterializer struct {
	store     repositories.MaterializationRepository
	addresses repositories.AddressRepository
	counters  CounterService
	audit     AuditSink
	newID     IDGenerator
	now       func() time.Time
	logger    Logger
}

// NewOrderMaterializer constructs the OrderMaterializer.
func NewOrderMaterializer(deps OrderMaterializerDeps) (OrderMaterializer, error) {
	if deps.Store == nil {
		return nil, errors.New("order materializer: materialization repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("order materializer: address repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order materializer: counter service is required")
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
	return &orderMaterializer{
		store:     deps.Store,
		addresses: deps.Addresses,
		counters:  deps.Counters,
		audit:     deps.Audit,
		newID:     newID,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (m *orderMaterializer) Materialize(ctx context.Context, cmd MaterializeCommand) (MaterializeOutcome, error) {
	record := cmd.Record
	if strings.TrimSpace(record.GatewayOrderID) == "" {
		return MaterializeOutcome{}, fmt.Errorf("%w: gateway order id is required", ErrValidation)
	}
	paymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	if paymentID == "" {
		paymentID = record.GatewayPaymentID
	}

	number, err := m.counters.NextOrderNumber(ctx)
	if err != nil {
		return MaterializeOutcome{}, err
	}

	now := m.now()
	order := domain.Order{
		ID:               m.newID(),
		OrderNumber:      number,
		UserID:           record.UserID,
		Status:           domain.OrderStatusConfirmed,
		PaymentStatus:    domain.OrderPaymentStatusPaid,
		Currency:         record.Currency,
		Subtotal:         record.Subtotal,
		Discount:         record.Discount,
		TotalAmount:      record.Amount,
		Items:            domain.ChargeLinesToItems(record.Lines),
		ShippingAddress:  m.snapshotAddress(ctx, record.UserID),
		PromoCodeID:      record.PromoCodeID,
		GatewayOrderID:   record.GatewayOrderID,
		GatewayPaymentID: paymentID,
		CreatedAt:        now,
		UpdatedAt:        now,
		PaidAt:           &now,
	}

	req := repositories.MaterializeRequest{
		GatewayOrderID:   record.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Source:           record.Source,
		SourceID:         record.SourceID,
		PromoCodeID:      record.PromoCodeID,
		Now:              now,
	}
	switch record.Source {
	case domain.PaymentSourceDesignRequest:
		order.DesignRequestID = record.SourceID
	case domain.PaymentSourceCart, domain.PaymentSourceSingleItem:
		req.StockLines = make([]domain.CartLine, 0, len(record.Lines))
		for _, line := range record.Lines {
			req.StockLines = append(req.StockLines, domain.CartLine{ProductID: line.ProductID, Quantity: line.Quantity})
		}
	}
	req.Order = order

	result, err := m.store.Materialize(ctx, req)
	if err != nil {
		m.logger(ctx, "order.materialize.failed", map[string]any{
			"gatewayOrderId": record.GatewayOrderID,
			"error":          err.Error(),
		})
		return MaterializeOutcome{}, translateRepositoryError("orders.materialize", err)
	}

	if result.Replayed {
		m.logger(ctx, "order.materialize.replayed", map[string]any{
			"gatewayOrderId": record.GatewayOrderID,
			"orderId":        result.Order.ID,
		})
		return MaterializeOutcome{Order: result.Order, Replayed: true}, nil
	}

	m.emitAudit(ctx, result.Order, paymentID)
	return MaterializeOutcome{Order: result.Order}, nil
}

// snapshotAddress copies the default shipping address by value. Payment has already been taken, so a
// missing address is logged and the order proceeds without a snapshot.
func (m *orderMaterializer) snapshotAddress(ctx context.Context, userID string) *domain.Address {
	address, err := m.addresses.DefaultShipping(ctx, userID)
	if err != nil {
		m.logger(ctx, "order.materialize.address_missing", map[string]any{
			"userId": userID,
			"error":  err.Error(),
		})
		return nil
	}
	snapshot := address.Clone()
	return &snapshot
}

func (m *orderMaterializer) emitAudit(ctx context.Context, order domain.Order, paymentID string) {
	if m.audit == nil {
		return
	}
	m.audit.Emit(ctx, domain.AuditEvent{
		Action:    "order.materialized",
		ActorID:   order.UserID,
		TargetRef: "/orders/" + order.ID,
		Metadata: map[string]any{
			"orderNumber":      order.OrderNumber,
			"gatewayOrderId":   order.GatewayOrderID,
			"gatewayPaymentId": paymentID,
			"amount":           order.TotalAmount,
			"currency":         order.Currency,
		},
		OccurredAt: order.CreatedAt,
	})
}
