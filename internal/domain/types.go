package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps paginated results with the next page token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Availability classifies stock levels for products and raw materials.
type Availability string

const (
	// AvailabilityAvailable signals stock above the low-stock threshold.
	AvailabilityAvailable Availability = "available"
	// AvailabilityLowStock signals stock at or below the threshold but still positive.
	AvailabilityLowStock Availability = "low_stock"
	// AvailabilityOutOfStock signals no usable stock.
	AvailabilityOutOfStock Availability = "out_of_stock"
)

// AvailabilityFor derives the availability tag from the current and minimum quantity.
// quantity <= 0 is out of stock, 0 < quantity <= minQuantity is low stock, anything above is available.
func AvailabilityFor(quantity, minQuantity int64) Availability {
	switch {
	case quantity <= 0:
		return AvailabilityOutOfStock
	case quantity <= minQuantity:
		return AvailabilityLowStock
	default:
		return AvailabilityAvailable
	}
}

// Product is the authoritative catalogue record. UnitPrice is in minor units.
type Product struct {
	ID                string
	Name              string
	SKU               string
	UnitPrice         int64
	Currency          string
	StockQuantity     int64
	LowStockThreshold int64
	Availability      Availability
	UpdatedAt         time.Time
}

// DiscountType enumerates the promo discount strategies.
type DiscountType string

const (
	// DiscountTypePercentage discounts a whole-number percentage of the subtotal.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFlat discounts a fixed minor-unit amount.
	DiscountTypeFlat DiscountType = "flat"
)

// PromoCode describes a redeemable discount. Amounts are in minor units.
type PromoCode struct {
	ID                string
	Code              string
	DiscountType      DiscountType
	DiscountValue     int64
	MaxDiscountAmount *int64
	MinOrderAmount    *int64
	MaxUses           int64
	UsedCount         int64
	ExpiresAt         *time.Time
	IsActive          bool
	UpdatedAt         time.Time
}

// Redeemable reports whether the promo can still be applied at the supplied time.
func (p PromoCode) Redeemable(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return false
	}
	return p.UsedCount < p.MaxUses
}

// Cart is the server-side cart owned by a user. The cart id equals the owner's user id.
type Cart struct {
	ID        string
	UserID    string
	Lines     []CartLine
	UpdatedAt time.Time
}

// CartLine references a product and requested quantity; prices are never stored on the cart.
type CartLine struct {
	ProductID string
	Quantity  int64
}

// DesignRequestStatus enumerates the custom-print quotation lifecycle.
type DesignRequestStatus string

const (
	DesignRequestStatusPendingReview           DesignRequestStatus = "pending_review"
	DesignRequestStatusQuotationSent           DesignRequestStatus = "quotation_sent"
	DesignRequestStatusNegotiationRequested    DesignRequestStatus = "negotiation_requested"
	DesignRequestStatusRevisedQuotationSent    DesignRequestStatus = "revised_quotation_sent"
	DesignRequestStatusFinalQuotationConfirmed DesignRequestStatus = "final_quotation_confirmed"
	DesignRequestStatusPaymentPending          DesignRequestStatus = "payment_pending"
	DesignRequestStatusPaid                    DesignRequestStatus = "paid"
	DesignRequestStatusInProgress              DesignRequestStatus = "in_progress"
	DesignRequestStatusCompleted               DesignRequestStatus = "completed"
	DesignRequestStatusRejected                DesignRequestStatus = "rejected"
)

// IsTerminal reports whether the status ends the quotation workflow.
func (s DesignRequestStatus) IsTerminal() bool {
	switch s {
	case DesignRequestStatusPaid, DesignRequestStatusCompleted, DesignRequestStatusRejected:
		return true
	case DesignRequestStatusPendingReview,
		DesignRequestStatusQuotationSent,
		DesignRequestStatusNegotiationRequested,
		DesignRequestStatusRevisedQuotationSent,
		DesignRequestStatusFinalQuotationConfirmed,
		DesignRequestStatusPaymentPending,
		DesignRequestStatusInProgress:
		return false
	}
	return false
}

// DesignRequest is a custom-print quotation. FinalAmount is in minor units.
type DesignRequest struct {
	ID               string
	UserID           string
	Title            string
	Status           DesignRequestStatus
	PriceLocked      bool
	FinalAmount      *int64
	ConvertedToOrder bool
	OrderID          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PayableAmount returns the locked amount when the request is eligible for payment.
func (d DesignRequest) PayableAmount() (int64, bool) {
	if !d.PriceLocked || d.FinalAmount == nil || d.Status != DesignRequestStatusPaymentPending {
		return 0, false
	}
	return *d.FinalAmount, true
}

// PaymentStatus enumerates the payment record lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentSource identifies the entity a payment settles.
type PaymentSource string

const (
	PaymentSourceCart          PaymentSource = "cart"
	PaymentSourceDesignRequest PaymentSource = "design_request"
	// PaymentSourceSingleItem buys one product directly without touching the cart.
	PaymentSourceSingleItem PaymentSource = "single_item"
)

// PaymentRecord is one gateway payment attempt keyed by the gateway order id.
type PaymentRecord struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Provider         string
	Status           PaymentStatus
	Source           PaymentSource
	SourceID         string
	UserID           string
	Currency         string
	Amount           int64
	Subtotal         int64
	Discount         int64
	PromoCodeID      string
	Lines            []ChargeLine
	Receipt          string
	OrderID          string
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderStatus enumerates the order lifecycle.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// OrderPaymentStatus tracks the settlement state shown on an order.
type OrderPaymentStatus string

const (
	OrderPaymentStatusPending  OrderPaymentStatus = "pending"
	OrderPaymentStatusPaid     OrderPaymentStatus = "paid"
	OrderPaymentStatusFailed   OrderPaymentStatus = "failed"
	OrderPaymentStatusRefunded OrderPaymentStatus = "refunded"
)

// Order is created exactly once per verified payment. Amounts are in minor units.
type Order struct {
	ID               string
	OrderNumber      string
	UserID           string
	Status           OrderStatus
	PaymentStatus    OrderPaymentStatus
	Currency         string
	Subtotal         int64
	Discount         int64
	TotalAmount      int64
	Items            []OrderItem
	ShippingAddress  *Address
	DesignRequestID  string
	PromoCodeID      string
	GatewayOrderID   string
	GatewayPaymentID string
	Courier          *CourierInfo
	CreatedAt        time.Time
	UpdatedAt        time.Time
	PaidAt           *time.Time
}

// OrderItem freezes the price charged for a line at order time.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int64
	UnitPrice int64
	Total     int64
}

// CourierInfo carries shipment tracking data maintained by fulfilment.
type CourierInfo struct {
	Name           string
	TrackingNumber string
	TrackingURL    string
}

// Address captures a shipping address; orders keep a value copy.
type Address struct {
	ID         string
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
	IsDefault  bool
}

// Clone returns a deep copy so snapshots never alias the user's live address.
func (a Address) Clone() Address {
	out := a
	out.Line2 = cloneString(a.Line2)
	out.State = cloneString(a.State)
	out.Phone = cloneString(a.Phone)
	return out
}

// RawMaterial is an operations-managed stock item.
type RawMaterial struct {
	ID           string
	Name         string
	Unit         string
	Quantity     int64
	MinQuantity  int64
	Availability Availability
	UpdatedAt    time.Time
}

// LedgerEntryKind distinguishes stock consumption from replenishment.
type LedgerEntryKind string

const (
	LedgerEntryKindUsage   LedgerEntryKind = "usage"
	LedgerEntryKindRestock LedgerEntryKind = "restock"
)

// LedgerEntry is an immutable record of one raw-material quantity change.
type LedgerEntry struct {
	ID               string
	RawMaterialID    string
	Kind             LedgerEntryKind
	PreviousQuantity int64
	Delta            int64
	NewQuantity      int64
	Reason           string
	Category         string
	Note             string
	Actor            string
	CreatedAt        time.Time
}

// UsageRecord logs material consumption by operations staff.
type UsageRecord struct {
	ID            string
	RawMaterialID string
	QuantityUsed  int64
	Reason        string
	Category      string
	Note          string
	Actor         string
	LedgerEntryID string
	CreatedAt     time.Time
}

// AuditEvent is emitted best-effort after significant state changes.
type AuditEvent struct {
	ID         string
	Action     string
	ActorID    string
	TargetRef  string
	Metadata   map[string]any
	OccurredAt time.Time
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
