package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/commerce/internal/platform/auth"
	"github.com/hanko-field/commerce/internal/platform/httpx"
	"github.com/hanko-field/commerce/internal/services"
)

const (
	maxPaymentRequestBody = 8 * 1024
	idempotencyKeyHeader  = "Idempotency-Key"
)

// PaymentHandlers exposes checkout creation and payment verification for authenticated users.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	verifier services.PaymentVerifier

	createMiddlewares []func(http.Handler) http.Handler
}

// NewPaymentHandlers constructs payment handlers guarded by Firebase authentication. createMiddlewares wrap
// only the endpoints that open gateway orders (rate limiting, idempotency).
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, verifier services.PaymentVerifier, createMiddlewares ...func(http.Handler) http.Handler) *PaymentHandlers {
	return &PaymentHandlers{
		authn:             authn,
		payments:          payments,
		verifier:          verifier,
		createMiddlewares: createMiddlewares,
	}
}

// Routes registers payment endpoints under the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}

	create := group
	for _, mw := range h.createMiddlewares {
		if mw != nil {
			create = create.With(mw)
		}
	}
	create.Post("/orders", h.createOrder)
	create.Post("/design-requests/{designRequestId}", h.createDesignPayment)
	group.Post("/verify", h.verifyPayment)
}

type createOrderRequest struct {
	CheckoutMode string `json:"checkoutMode"`
	ProductID    string `json:"productId"`
	Quantity     int64  `json:"quantity"`
	PromoCodeID  string `json:"promoCodeId"`
}

type paymentIntentResponse struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	Provider       string `json:"provider"`
	KeyID          string `json:"keyId,omitempty"`
	ClientSecret   string `json:"clientSecret,omitempty"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Subtotal       int64  `json:"subtotal"`
	Discount       int64  `json:"discount"`
	Total          int64  `json:"total"`
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
	SourceEntityID   string `json:"sourceEntityId"`
}

type verifyPaymentResponse struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Replayed    bool   `json:"replayed"`
}

func (h *PaymentHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(w, r, maxPaymentRequestBody, &req) {
		return
	}

	mode := services.CheckoutMode(strings.ToLower(strings.TrimSpace(req.CheckoutMode)))
	switch mode {
	case "", services.CheckoutModeCart:
		mode = services.CheckoutModeCart
	case services.CheckoutModeSingleItem:
		if strings.TrimSpace(req.ProductID) == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required for single_item checkout", http.StatusBadRequest))
			return
		}
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "checkoutMode must be cart or single_item", http.StatusBadRequest))
		return
	}

	intent, err := h.payments.CreateCartPayment(ctx, services.CreateCartPaymentCommand{
		UserID:         identity.UID,
		Mode:           mode,
		ProductID:      strings.TrimSpace(req.ProductID),
		Quantity:       req.Quantity,
		PromoCodeID:    strings.TrimSpace(req.PromoCodeID),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newPaymentIntentResponse(intent))
}

func (h *PaymentHandlers) createDesignPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	requestID := strings.TrimSpace(chi.URLParam(r, "designRequestId"))
	if requestID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "designRequestId is required", http.StatusBadRequest))
		return
	}

	intent, err := h.payments.CreateDesignPayment(ctx, services.CreateDesignPaymentCommand{
		UserID:          identity.UID,
		DesignRequestID: requestID,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newPaymentIntentResponse(intent))
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verifier == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment verifier unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if !decodeJSONBody(w, r, maxPaymentRequestBody, &req) {
		return
	}
	cmd := services.VerifyPaymentCommand{
		UserID:           identity.UID,
		GatewayOrderID:   strings.TrimSpace(req.GatewayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.GatewayPaymentID),
		Signature:        strings.TrimSpace(req.Signature),
		SourceID:         strings.TrimSpace(req.SourceEntityID),
	}
	if cmd.GatewayOrderID == "" || cmd.GatewayPaymentID == "" || cmd.Signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "gatewayOrderId, gatewayPaymentId and signature are required", http.StatusBadRequest))
		return
	}

	result, err := h.verifier.Verify(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, verifyPaymentResponse{
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
		Replayed:    result.Replayed,
	})
}

func newPaymentIntentResponse(intent services.PaymentIntent) paymentIntentResponse {
	return paymentIntentResponse{
		GatewayOrderID: intent.GatewayOrderID,
		Provider:       intent.Provider,
		KeyID:          intent.KeyID,
		ClientSecret:   intent.ClientSecret,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
		Subtotal:       intent.Subtotal,
		Discount:       intent.Discount,
		Total:          intent.Total,
	}
}
