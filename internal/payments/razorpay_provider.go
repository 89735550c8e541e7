package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanko-field/commerce/internal/platform/textutil"
)

const (
	defaultRazorpayBaseURL = "https://api.razorpay.com"
	defaultRazorpayTimeout = 10 * time.Second
	maxGatewayResponse     = 1 << 20
)

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     Logger
}

// RazorpayProvider opens orders over the gateway's REST API and verifies HMAC signed callbacks.
type RazorpayProvider struct {
	baseURL   string
	keyID     string
	keySecret []byte
	client    *http.Client
	logger    Logger
	tracer    trace.Tracer
}

// NewRazorpayProvider constructs the provider. Both halves of the credential pair are required.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay: key id and key secret are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRazorpayTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &RazorpayProvider{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: []byte(keySecret),
		client:    client,
		logger:    logger,
		tracer:    otel.Tracer("github.com/hanko-field/commerce/internal/payments"),
	}, nil
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder issues POST /v1/orders authenticated with the key pair.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if p == nil {
		return GatewayOrder{}, errors.New("razorpay: provider is nil")
	}
	if req.Amount <= 0 {
		return GatewayOrder{}, errors.New("razorpay: amount must be positive")
	}

	ctx, span := p.tracer.Start(ctx, "payments.razorpay.create_order", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("payment.amount", req.Amount),
		attribute.String("payment.currency", strings.ToUpper(req.Currency)),
	)

	payload, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		Receipt:  TruncateReceipt(req.Receipt),
		Notes:    textutil.NormalizeNotes(req.Notes),
	})
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: build request: %w", err)
	}
	httpReq.SetBasicAuth(p.keyID, string(p.keySecret))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		p.logger(ctx, "payments.razorpay.order.failed", map[string]any{
			"error":   err.Error(),
			"timeout": isTimeout(err),
		})
		if isTimeout(err) {
			return GatewayOrder{}, fmt.Errorf("%w: razorpay create order timed out", ErrUpstream)
		}
		return GatewayOrder{}, fmt.Errorf("%w: razorpay create order: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponse))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: razorpay read response: %v", ErrUpstream, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var gatewayErr razorpayErrorResponse
		_ = json.Unmarshal(body, &gatewayErr)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		p.logger(ctx, "payments.razorpay.order.failed", map[string]any{
			"status":      resp.StatusCode,
			"code":        gatewayErr.Error.Code,
			"description": gatewayErr.Error.Description,
		})
		return GatewayOrder{}, fmt.Errorf("%w: razorpay create order: status %d %s", ErrUpstream, resp.StatusCode, gatewayErr.Error.Code)
	}

	var out razorpayOrderResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: razorpay decode order: %v", ErrUpstream, err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return GatewayOrder{}, fmt.Errorf("%w: razorpay returned an order without id", ErrUpstream)
	}

	p.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"gatewayOrderId": out.ID,
		"amount":         out.Amount,
		"latencyMs":      time.Since(start).Milliseconds(),
	})

	currency := strings.ToUpper(out.Currency)
	if currency == "" {
		currency = strings.ToUpper(req.Currency)
	}
	amount := out.Amount
	if amount == 0 {
		amount = req.Amount
	}
	return GatewayOrder{
		ID:       out.ID,
		Provider: "razorpay",
		Amount:   amount,
		Currency: currency,
		Status:   out.Status,
		KeyID:    p.keyID,
	}, nil
}

// VerifyPayment recomputes HMAC-SHA256(order_id|payment_id) and compares it in constant time.
func (p *RazorpayProvider) VerifyPayment(ctx context.Context, req VerifyRequest) error {
	if p == nil {
		return errors.New("razorpay: provider is nil")
	}
	expected := SignCallback(p.keySecret, req.GatewayOrderID, req.GatewayPaymentID)
	supplied := strings.ToLower(strings.TrimSpace(req.Signature))
	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		p.logger(ctx, "payments.razorpay.signature.failed", map[string]any{
			"gatewayOrderId": req.GatewayOrderID,
		})
		return ErrInvalidSignature
	}
	return nil
}

// SignCallback returns the hex HMAC-SHA256 the gateway attaches to a completion callback.
func SignCallback(secret []byte, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
