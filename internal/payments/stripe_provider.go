package payments

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/hanko-field/commerce/internal/platform/textutil"
)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	// PublishableKey is returned to clients as the public key identifier.
	PublishableKey string
	Backends       *stripe.Backends
	Logger         Logger
	Clock          func() time.Time
	Intents        stripePaymentIntentAPI
}

// StripeProvider implements Provider using Stripe PaymentIntents.
type StripeProvider struct {
	intents        stripePaymentIntentAPI
	account        string
	publishableKey string
	clock          func() time.Time
	logger         Logger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents:        intents,
		account:        strings.TrimSpace(cfg.AccountID),
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateOrder creates a PaymentIntent for the authoritative amount.
func (p *StripeProvider) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if p == nil {
		return GatewayOrder{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return GatewayOrder{}, errors.New("stripe: amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(strings.TrimSpace(req.Currency))),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	receipt := TruncateReceipt(req.Receipt)
	if receipt != "" {
		params.Description = stripe.String(receipt)
	}
	params.Metadata = textutil.NormalizeNotes(req.Notes)
	if receipt != "" {
		if params.Metadata == nil {
			params.Metadata = map[string]string{}
		}
		params.Metadata["receipt"] = receipt
	}

	intent, err := p.intents.New(params)
	if err != nil {
		p.logger(ctx, "payments.stripe.intent.failed", map[string]any{"error": err.Error()})
		return GatewayOrder{}, fmt.Errorf("%w: stripe create payment intent: %v", ErrUpstream, err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"currency":      intent.Currency,
		"createdAt":     p.clock(),
	})

	return GatewayOrder{
		ID:           intent.ID,
		Provider:     "stripe",
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		Status:       string(intent.Status),
		KeyID:        p.publishableKey,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// VerifyPayment confirms the intent succeeded for the expected amount. The client proves possession of the
// intent by echoing its client secret as the signature.
func (p *StripeProvider) VerifyPayment(ctx context.Context, req VerifyRequest) error {
	if p == nil {
		return errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.intents.Get(req.GatewayOrderID, params)
	if err != nil {
		return fmt.Errorf("%w: stripe lookup payment intent: %v", ErrUpstream, err)
	}
	if subtle.ConstantTimeCompare([]byte(intent.ClientSecret), []byte(strings.TrimSpace(req.Signature))) != 1 {
		return ErrInvalidSignature
	}
	if !matchesStripePayment(intent, req.GatewayPaymentID) {
		return ErrInvalidSignature
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		p.logger(ctx, "payments.stripe.intent.incomplete", map[string]any{
			"paymentIntent": intent.ID,
			"status":        intent.Status,
		})
		return fmt.Errorf("%w: intent status %s", ErrPaymentIncomplete, intent.Status)
	}
	if req.ExpectedAmount > 0 && intent.Amount != req.ExpectedAmount {
		return fmt.Errorf("%w: amount %d does not match %d", ErrInvalidSignature, intent.Amount, req.ExpectedAmount)
	}
	if req.Currency != "" && !strings.EqualFold(string(intent.Currency), req.Currency) {
		return fmt.Errorf("%w: currency %s does not match %s", ErrInvalidSignature, intent.Currency, req.Currency)
	}
	return nil
}

func matchesStripePayment(intent *stripe.PaymentIntent, paymentID string) bool {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == intent.ID {
		return true
	}
	return intent.LatestCharge != nil && intent.LatestCharge.ID != "" && paymentID == intent.LatestCharge.ID
}
