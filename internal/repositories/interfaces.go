package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Products() ProductRepository
	PromoCodes() PromoCodeRepository
	Carts() CartRepository
	DesignRequests() DesignRequestRepository
	Addresses() AddressRepository
	PaymentRecords() PaymentRecordRepository
	Orders() OrderRepository
	Materializer() MaterializationRepository
	RawMaterials() RawMaterialRepository
	Counters() CounterRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository reads authoritative product rows.
type ProductRepository interface {
	// FindByIDs returns the products keyed by id. Missing ids are absent from the map.
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// PromoCodeRepository reads promo definitions. Redemption happens inside MaterializationRepository.
type PromoCodeRepository interface {
	FindByID(ctx context.Context, promoID string) (domain.PromoCode, error)
}

// CartRepository loads the server-side cart for a user.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
}

// DesignRequestRepository reads custom-print quotations.
type DesignRequestRepository interface {
	FindByID(ctx context.Context, designRequestID string) (domain.DesignRequest, error)
}

// AddressRepository resolves shipping addresses owned by a user.
type AddressRepository interface {
	DefaultShipping(ctx context.Context, userID string) (domain.Address, error)
}

// PaymentRecordRepository persists gateway payment attempts keyed by gateway order id.
type PaymentRecordRepository interface {
	// Create inserts a pending record and fails with a conflict when the gateway order id exists.
	Create(ctx context.Context, record domain.PaymentRecord) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.PaymentRecord, error)
	// MarkFailed transitions a pending record to failed. Records in any other state are left untouched.
	MarkFailed(ctx context.Context, gatewayOrderID string, reason string, at time.Time) error
}

// OrderRepository reads materialized orders.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
}

// MaterializeRequest carries everything committed in the materialization transaction.
type MaterializeRequest struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Order            domain.Order
	Source           domain.PaymentSource
	SourceID         string
	// StockLines are decremented with a guarded compare-and-update for cart checkouts.
	StockLines  []domain.CartLine
	PromoCodeID string
	Now         time.Time
}

// MaterializeResult reports the committed (or previously committed) order.
type MaterializeResult struct {
	Order    domain.Order
	Replayed bool
}

// MaterializationRepository commits an order and all of its side effects atomically.
type MaterializationRepository interface {
	Materialize(ctx context.Context, req MaterializeRequest) (MaterializeResult, error)
}

// RawMaterialMutation describes one ledgered stock change.
type RawMaterialMutation struct {
	RawMaterialID string
	Entry         domain.LedgerEntry
	// Usage is written alongside the ledger entry for consumption changes.
	Usage *domain.UsageRecord
	Now   time.Time
}

// RawMaterialMutationResult returns the updated material and persisted ledger entry.
type RawMaterialMutationResult struct {
	Material domain.RawMaterial
	Entry    domain.LedgerEntry
}

// LedgerListQuery pages through a material's ledger, newest first.
type LedgerListQuery struct {
	RawMaterialID string
	Pagination    domain.Pagination
}

// RawMaterialRepository manages raw material stock and its append-only ledger.
type RawMaterialRepository interface {
	FindByID(ctx context.Context, rawMaterialID string) (domain.RawMaterial, error)
	// ApplyMutation re-reads the quantity, applies Entry.Delta, recomputes availability and writes the
	// ledger entry (and usage record) in one transaction. A delta that would drive quantity below zero fails
	// with InventoryErrorInsufficientStock.
	ApplyMutation(ctx context.Context, mutation RawMaterialMutation) (RawMaterialMutationResult, error)
	ListLedger(ctx context.Context, query LedgerListQuery) (domain.CursorPage[domain.LedgerEntry], error)
	// LedgerTotals returns the sum of deltas and the previous quantity of the oldest entry.
	LedgerTotals(ctx context.Context, rawMaterialID string) (LedgerTotals, error)
}

// LedgerTotals summarises a material ledger for reconciliation.
type LedgerTotals struct {
	Entries        int64
	DeltaSum       int64
	OpeningBalance int64
}

// CounterRepository provides sequential number generation with atomic increments.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}
