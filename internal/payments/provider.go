package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxReceiptLength is the longest correlation receipt accepted by the gateways.
const MaxReceiptLength = 40

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrUpstream signals a gateway transport failure, timeout or non-2xx response. Callers may retry.
	ErrUpstream = errors.New("payments: upstream failure")
	// ErrInvalidSignature signals that a completion callback failed verification.
	ErrInvalidSignature = errors.New("payments: signature mismatch")
	// ErrPaymentIncomplete signals the gateway has not settled the payment.
	ErrPaymentIncomplete = errors.New("payments: payment not completed")
)

// Logger defines the logging contract for provider operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// OrderRequest opens a gateway order for an authoritative amount in minor units.
type OrderRequest struct {
	Amount         int64
	Currency       string
	Receipt        string
	Notes          map[string]string
	IdempotencyKey string
}

// GatewayOrder is the gateway-side payment intent returned to the client.
type GatewayOrder struct {
	ID       string
	Provider string
	Amount   int64
	Currency string
	Status   string
	// KeyID is the public key identifier the client uses to open the checkout widget.
	KeyID string
	// ClientSecret is only populated by providers whose client SDK needs it.
	ClientSecret string
}

// VerifyRequest carries the completion callback asserted by the client.
type VerifyRequest struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	ExpectedAmount   int64
	Currency         string
}

// Provider defines the contract for gateway adapters to implement.
type Provider interface {
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
	// VerifyPayment returns ErrInvalidSignature when the callback cannot be trusted.
	VerifyPayment(ctx context.Context, req VerifyRequest) error
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := normaliseKey(k)
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := normaliseKey(ctx.PreferredProvider); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := normaliseKey(providerKey)
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := normaliseKey(m.defaultProvider); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateOrder delegates to the resolved provider and stamps the provider key on the result.
func (m *Manager) CreateOrder(ctx context.Context, paymentCtx PaymentContext, req OrderRequest) (GatewayOrder, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return GatewayOrder{}, err
	}
	req.Receipt = TruncateReceipt(req.Receipt)
	order, err := provider.CreateOrder(ctx, req)
	if err != nil {
		return GatewayOrder{}, err
	}
	order.Provider = key
	return order, nil
}

// VerifyPayment delegates to the provider that opened the gateway order.
func (m *Manager) VerifyPayment(ctx context.Context, providerKey string, req VerifyRequest) error {
	_, provider, err := m.resolveProvider(PaymentContext{PreferredProvider: providerKey, Currency: req.Currency})
	if err != nil {
		return err
	}
	return provider.VerifyPayment(ctx, req)
}

// TruncateReceipt clips the receipt to MaxReceiptLength bytes without splitting a rune.
func TruncateReceipt(receipt string) string {
	receipt = strings.TrimSpace(receipt)
	if len(receipt) <= MaxReceiptLength {
		return receipt
	}
	cut := MaxReceiptLength
	for cut > 0 && !isRuneStart(receipt[cut]) {
		cut--
	}
	return receipt[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func normaliseKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
