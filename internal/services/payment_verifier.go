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

const defaultMaterializeTimeout = 20 * time.Second

// callbackVerifier abstracts payments.Manager signature checks.
type callbackVerifier interface {
	VerifyPayment(ctx context.Context, providerKey string, req payments.VerifyRequest) error
}

// PaymentVerifierDeps wires the verification pipeline.
type PaymentVerifierDeps struct {
	Records        repositories.PaymentRecordRepository
	Orders         repositories.OrderRepository
	DesignRequests repositories.DesignRequestRepository
	Products       repositories.ProductRepository
	Gateway        callbackVerifier
	Materializer   OrderMaterializer
	// MaterializeTimeout bounds the commit, which runs detached from client cancellation.
	MaterializeTimeout time.Duration
	Clock              func() time.Time
	Logger             Logger
}

type paymentVerifier struct {
	records      repositories.PaymentRecordRepository
	orders       repositories.OrderRepository
	designs      repositories.DesignRequestRepository
	products     repositories.ProductRepository
	gateway      callbackVerifier
	materializer OrderMaterializer
	timeout      time.Duration
	now          func() time.Time
	logger       Logger
}

// NewPaymentVerifier constructs the PaymentVerifier.
func NewPaymentVerifier(deps PaymentVerifierDeps) (PaymentVerifier, error) {
	switch {
	case deps.Records == nil:
		return nil, errors.New("payment verifier: payment record repository is required")
	case deps.Orders == nil:
		return nil, errors.New("payment verifier: order repository is required")
	case deps.DesignRequests == nil:
		return nil, errors.New("payment verifier: design request repository is required")
	case deps.Products == nil:
		return nil, errors.New("payment verifier: product repository is required")
	case deps.Gateway == nil:
		return nil, errors.New("payment verifier: gateway is required")
	case deps.Materializer == nil:
		return nil, errors.New("payment verifier: materializer is required")
	}
	timeout := deps.MaterializeTimeout
	if timeout <= 0 {
		timeout = defaultMaterializeTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentVerifier{
		records:      deps.Records,
		orders:       deps.Orders,
		designs:      deps.DesignRequests,
		products:     deps.Products,
		gateway:      deps.Gateway,
		materializer: deps.Materializer,
		timeout:      timeout,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (v *paymentVerifier) Verify(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return VerifyPaymentResult{}, ErrUnauthorized
	}
	orderID := strings.TrimSpace(cmd.GatewayOrderID)
	paymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	sourceID := strings.TrimSpace(cmd.SourceID)
	signature := strings.TrimSpace(cmd.Signature)
	if orderID == "" || paymentID == "" || signature == "" || sourceID == "" {
		return VerifyPaymentResult{}, fmt.Errorf("%w: gatewayOrderId, gatewayPaymentId, signature and sourceEntityId are required", ErrValidation)
	}

	record, err := v.records.FindByGatewayOrderID(ctx, orderID)
	if err != nil {
		return VerifyPaymentResult{}, translateRepositoryError("payment_records.find", err)
	}

	// The signature gates everything, including replays.
	if err := v.gateway.VerifyPayment(ctx, record.Provider, payments.VerifyRequest{
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
		Signature:        signature,
		ExpectedAmount:   record.Amount,
		Currency:         record.Currency,
	}); err != nil {
		v.logger(ctx, "payment.verify.failed", map[string]any{
			"gatewayOrderId": orderID,
			"userId":         userID,
			"error":          err.Error(),
		})
		return VerifyPaymentResult{}, translateRepositoryError("payment.verify", err)
	}

	if record.UserID != userID {
		return VerifyPaymentResult{}, fmt.Errorf("%w: payment belongs to another user", ErrForbidden)
	}

	switch record.Status {
	case domain.PaymentStatusSuccess:
		return v.replay(ctx, record)
	case domain.PaymentStatusFailed:
		return VerifyPaymentResult{}, fmt.Errorf("%w: payment %s already failed: %s", ErrPreconditionFailed, orderID, record.FailureReason)
	}

	if record.SourceID != sourceID {
		return VerifyPaymentResult{}, fmt.Errorf("%w: source entity does not match payment", ErrValidation)
	}

	// Commit runs to a terminal outcome even if the caller disconnects.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
	defer cancel()

	if err := v.revalidateSource(commitCtx, record, userID); err != nil {
		return v.settleStop(commitCtx, record, err)
	}

	outcome, err := v.materializer.Materialize(commitCtx, MaterializeCommand{Record: record, GatewayPaymentID: paymentID})
	if err != nil {
		return v.settleStop(commitCtx, record, err)
	}

	v.logger(ctx, "payment.verify.succeeded", map[string]any{
		"gatewayOrderId": orderID,
		"orderId":        outcome.Order.ID,
		"orderNumber":    outcome.Order.OrderNumber,
		"replayed":       outcome.Replayed,
	})
	return VerifyPaymentResult{
		OrderID:     outcome.Order.ID,
		OrderNumber: outcome.Order.OrderNumber,
		Replayed:    outcome.Replayed,
	}, nil
}

func (v *paymentVerifier) replay(ctx context.Context, record domain.PaymentRecord) (VerifyPaymentResult, error) {
	if strings.TrimSpace(record.OrderID) == "" {
		return VerifyPaymentResult{}, fmt.Errorf("%w: payment %s settled without order", ErrConflict, record.GatewayOrderID)
	}
	order, err := v.orders.FindByID(ctx, record.OrderID)
	if err != nil {
		return VerifyPaymentResult{}, translateRepositoryError("orders.find", err)
	}
	v.logger(ctx, "payment.verify.replayed", map[string]any{
		"gatewayOrderId": record.GatewayOrderID,
		"orderId":        order.ID,
	})
	return VerifyPaymentResult{OrderID: order.ID, OrderNumber: order.OrderNumber, Replayed: true}, nil
}

// revalidateSource closes the window between intent creation and verification.
func (v *paymentVerifier) revalidateSource(ctx context.Context, record domain.PaymentRecord, userID string) error {
	switch record.Source {
	case domain.PaymentSourceDesignRequest:
		request, err := v.designs.FindByID(ctx, record.SourceID)
		if err != nil {
			return translateRepositoryError("design_requests.find", err)
		}
		if request.UserID != userID {
			return fmt.Errorf("%w: design request belongs to another user", ErrForbidden)
		}
		amount, ok := request.PayableAmount()
		if !ok {
			return fmt.Errorf("%w: design request %s is %s", ErrPreconditionFailed, request.ID, request.Status)
		}
		if amount != record.Amount {
			return fmt.Errorf("%w: final amount changed from %d to %d", ErrPreconditionFailed, record.Amount, amount)
		}
		return nil
	case domain.PaymentSourceCart, domain.PaymentSourceSingleItem:
		ids := make([]string, 0, len(record.Lines))
		for _, line := range record.Lines {
			ids = append(ids, line.ProductID)
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: payment has no lines", ErrPreconditionFailed)
		}
		products, err := v.products.FindByIDs(ctx, ids)
		if err != nil {
			return translateRepositoryError("products.find", err)
		}
		for _, id := range ids {
			if _, ok := products[id]; !ok {
				return fmt.Errorf("%w: product %s no longer exists", ErrPreconditionFailed, id)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown payment source %q", ErrValidation, record.Source)
	}
}

// settleStop resolves a failed attempt against the stored record. A concurrent callback may have
// committed after record was read, in which case the existing order is returned.
func (v *paymentVerifier) settleStop(ctx context.Context, record domain.PaymentRecord, cause error) (VerifyPaymentResult, error) {
	current, err := v.records.FindByGatewayOrderID(ctx, record.GatewayOrderID)
	if err == nil && current.Status == domain.PaymentStatusSuccess {
		return v.replay(ctx, current)
	}
	v.markFailed(ctx, record, cause)
	return VerifyPaymentResult{}, cause
}

// markFailed is best-effort: the caller already has the terminal error.
func (v *paymentVerifier) markFailed(ctx context.Context, record domain.PaymentRecord, cause error) {
	if !isHardStop(cause) {
		return
	}
	if err := v.records.MarkFailed(ctx, record.GatewayOrderID, cause.Error(), v.now()); err != nil {
		v.logger(ctx, "payment.record.mark_failed_error", map[string]any{
			"gatewayOrderId": record.GatewayOrderID,
			"error":          err.Error(),
		})
	}
}
