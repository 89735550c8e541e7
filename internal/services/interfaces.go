package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Charge        = domain.Charge
	Order         = domain.Order
	PaymentRecord = domain.PaymentRecord
	RawMaterial   = domain.RawMaterial
	LedgerEntry   = domain.LedgerEntry
	AuditEvent    = domain.AuditEvent
)

// Logger is the structured logging hook shared by services.
type Logger func(ctx context.Context, event string, fields map[string]any)

// IDGenerator produces unique identifiers for new records.
type IDGenerator func() string

// CheckoutMode selects how a checkout assembles its lines.
type CheckoutMode string

const (
	// CheckoutModeCart charges the caller's server-side cart.
	CheckoutModeCart CheckoutMode = "cart"
	// CheckoutModeSingleItem charges one product and quantity.
	CheckoutModeSingleItem CheckoutMode = "single_item"
)

// PriceAuthority recomputes charges from stored product and promo records.
type PriceAuthority interface {
	Quote(ctx context.Context, cmd QuoteCommand) (Charge, error)
}

// QuoteCommand identifies what is being bought. Prices never travel on the command.
type QuoteCommand struct {
	Mode        CheckoutMode
	UserID      string
	PromoCodeID string
	ProductID   string
	Quantity    int64
}

// PaymentService opens gateway orders for authoritative amounts and persists pending payment records.
type PaymentService interface {
	CreateCartPayment(ctx context.Context, cmd CreateCartPaymentCommand) (PaymentIntent, error)
	CreateDesignPayment(ctx context.Context, cmd CreateDesignPaymentCommand) (PaymentIntent, error)
}

// CreateCartPaymentCommand starts a cart or single item checkout.
type CreateCartPaymentCommand struct {
	UserID         string
	Mode           CheckoutMode
	ProductID      string
	Quantity       int64
	PromoCodeID    string
	IdempotencyKey string
}

// CreateDesignPaymentCommand starts payment for a price-locked design request.
type CreateDesignPaymentCommand struct {
	UserID          string
	DesignRequestID string
	IdempotencyKey  string
}

// PaymentIntent is returned to the client to open the gateway checkout.
type PaymentIntent struct {
	GatewayOrderID string
	Provider       string
	KeyID          string
	ClientSecret   string
	Amount         int64
	Currency       string
	Subtotal       int64
	Discount       int64
	Total          int64
}

// PaymentVerifier validates completion callbacks and hands verified payments to the materializer.
type PaymentVerifier interface {
	Verify(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error)
}

// VerifyPaymentCommand carries the client-asserted callback.
type VerifyPaymentCommand struct {
	UserID           string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	SourceID         string
}

// VerifyPaymentResult identifies the materialized order.
type VerifyPaymentResult struct {
	OrderID     string
	OrderNumber string
	Replayed    bool
}

// OrderMaterializer turns a verified payment into an order exactly once.
type OrderMaterializer interface {
	Materialize(ctx context.Context, cmd MaterializeCommand) (MaterializeOutcome, error)
}

// MaterializeCommand references the verified payment record.
type MaterializeCommand struct {
	Record           PaymentRecord
	GatewayPaymentID string
}

// MaterializeOutcome reports the committed order and whether it already existed.
type MaterializeOutcome struct {
	Order    Order
	Replayed bool
}

// InventoryLedger maintains raw material stock through append-only ledger entries.
type InventoryLedger interface {
	RecordUsage(ctx context.Context, cmd RecordUsageCommand) (LedgerMutationResult, error)
	Restock(ctx context.Context, cmd RestockCommand) (LedgerMutationResult, error)
	ListLedger(ctx context.Context, rawMaterialID string, pager domain.Pagination) (domain.CursorPage[LedgerEntry], error)
	Reconcile(ctx context.Context, rawMaterialID string) (ReconcileResult, error)
}

// RecordUsageCommand consumes raw material stock.
type RecordUsageCommand struct {
	RawMaterialID string
	QuantityUsed  int64
	Reason        string
	Category      string
	Note          string
	Actor         string
}

// RestockCommand replenishes raw material stock.
type RestockCommand struct {
	RawMaterialID string
	Quantity      int64
	Reason        string
	Note          string
	Actor         string
}

// LedgerMutationResult is the material state after a ledgered change.
type LedgerMutationResult struct {
	RawMaterialID string
	Quantity      int64
	Availability  domain.Availability
	LedgerEntryID string
	Entry         LedgerEntry
}

// ReconcileResult compares the stored quantity with the ledger sum.
type ReconcileResult struct {
	RawMaterialID  string
	Quantity       int64
	OpeningBalance int64
	LedgerSum      int64
	Entries        int64
	Expected       int64
	Consistent     bool
	CheckedAt      time.Time
}

// OrderStatusProjector serves the redacted public order status.
type OrderStatusProjector interface {
	Project(ctx context.Context, orderID string) (OrderStatusView, error)
}

// CounterService allocates human readable sequence numbers.
type CounterService interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// AuditSink accepts audit events without blocking the caller.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent) bool
}
