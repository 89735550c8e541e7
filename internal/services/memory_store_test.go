package services

import (
	"context"
	"crypto/hmac"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/payments"
	"github.com/hanko-field/commerce/internal/platform/pagination"
	"github.com/hanko-field/commerce/internal/repositories"
)

type memoryError struct {
	msg      string
	notFound bool
	conflict bool
}

func (e *memoryError) Error() string       { return e.msg }
func (e *memoryError) IsNotFound() bool    { return e.notFound }
func (e *memoryError) IsConflict() bool    { return e.conflict }
func (e *memoryError) IsUnavailable() bool { return false }

func notFound(what string) error {
	return &memoryError{msg: what + " not found", notFound: true}
}

// memoryStore serialises every operation behind one mutex so Materialize and ApplyMutation behave like
// storage transactions.
type memoryStore struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	promos    map[string]domain.PromoCode
	carts     map[string]domain.Cart
	designs   map[string]domain.DesignRequest
	addresses map[string]domain.Address
	records   map[string]domain.PaymentRecord
	orders    map[string]domain.Order
	materials map[string]domain.RawMaterial
	ledger    map[string][]domain.LedgerEntry
	usage     []domain.UsageRecord

	applyCalls  int
	recordWrite int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		products:  map[string]domain.Product{},
		promos:    map[string]domain.PromoCode{},
		carts:     map[string]domain.Cart{},
		designs:   map[string]domain.DesignRequest{},
		addresses: map[string]domain.Address{},
		records:   map[string]domain.PaymentRecord{},
		orders:    map[string]domain.Order{},
		materials: map[string]domain.RawMaterial{},
		ledger:    map[string][]domain.LedgerEntry{},
	}
}

func (s *memoryStore) FindByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

type promoRepo struct{ *memoryStore }

func (r promoRepo) FindByID(_ context.Context, id string) (domain.PromoCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	promo, ok := r.promos[id]
	if !ok {
		return domain.PromoCode{}, notFound("promo")
	}
	return promo, nil
}

func (s *memoryStore) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return domain.Cart{}, notFound("cart")
	}
	return cart, nil
}

type designRepo struct{ *memoryStore }

func (r designRepo) FindByID(_ context.Context, id string) (domain.DesignRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.designs[id]
	if !ok {
		return domain.DesignRequest{}, notFound("design request")
	}
	return request, nil
}

func (s *memoryStore) DefaultShipping(_ context.Context, userID string) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	address, ok := s.addresses[userID]
	if !ok {
		return domain.Address{}, notFound("address")
	}
	return address, nil
}

func (s *memoryStore) Create(_ context.Context, record domain.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.GatewayOrderID]; exists {
		return &memoryError{msg: "duplicate gateway order", conflict: true}
	}
	s.records[record.GatewayOrderID] = record
	s.recordWrite++
	return nil
}

func (s *memoryStore) FindByGatewayOrderID(_ context.Context, id string) (domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return domain.PaymentRecord{}, notFound("payment record")
	}
	return record, nil
}

func (s *memoryStore) MarkFailed(_ context.Context, id string, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return notFound("payment record")
	}
	if record.Status != domain.PaymentStatusPending {
		return nil
	}
	record.Status = domain.PaymentStatusFailed
	record.FailureReason = reason
	record.UpdatedAt = at
	s.records[id] = record
	return nil
}

type orderRepo struct{ *memoryStore }

func (r orderRepo) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, notFound("order")
	}
	return order, nil
}

func (s *memoryStore) Materialize(_ context.Context, req repositories.MaterializeRequest) (repositories.MaterializeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[req.GatewayOrderID]
	if !ok {
		return repositories.MaterializeResult{}, repositories.NewMaterializeError(repositories.MaterializeErrorPaymentNotFound, req.GatewayOrderID, nil)
	}
	if record.Status == domain.PaymentStatusSuccess && record.OrderID != "" {
		return repositories.MaterializeResult{Order: s.orders[record.OrderID], Replayed: true}, nil
	}
	if record.Status == domain.PaymentStatusFailed {
		return repositories.MaterializeResult{}, repositories.NewMaterializeError(repositories.MaterializeErrorPaymentFailed, req.GatewayOrderID, nil)
	}

	if req.Source == domain.PaymentSourceDesignRequest {
		if s.designs[req.SourceID].Status != domain.DesignRequestStatusPaymentPending {
			return repositories.MaterializeResult{}, repositories.NewMaterializeError(repositories.MaterializeErrorSourceChanged, req.SourceID, nil)
		}
	}
	for _, line := range req.StockLines {
		if s.products[line.ProductID].StockQuantity < line.Quantity {
			return repositories.MaterializeResult{}, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, line.ProductID, nil)
		}
	}
	if req.PromoCodeID != "" {
		promo := s.promos[req.PromoCodeID]
		if promo.UsedCount >= promo.MaxUses {
			return repositories.MaterializeResult{}, repositories.NewMaterializeError(repositories.MaterializeErrorPromoExhausted, req.PromoCodeID, nil)
		}
	}

	for _, line := range req.StockLines {
		product := s.products[line.ProductID]
		product.StockQuantity -= line.Quantity
		product.Availability = domain.AvailabilityFor(product.StockQuantity, product.LowStockThreshold)
		s.products[line.ProductID] = product
	}
	if req.Source == domain.PaymentSourceCart {
		delete(s.carts, req.SourceID)
	}
	if req.PromoCodeID != "" {
		promo := s.promos[req.PromoCodeID]
		promo.UsedCount++
		s.promos[req.PromoCodeID] = promo
	}
	if req.Source == domain.PaymentSourceDesignRequest {
		design := s.designs[req.SourceID]
		design.Status = domain.DesignRequestStatusPaid
		design.ConvertedToOrder = true
		design.OrderID = req.Order.ID
		s.designs[req.SourceID] = design
	}
	s.orders[req.Order.ID] = req.Order
	record.Status = domain.PaymentStatusSuccess
	record.GatewayPaymentID = req.GatewayPaymentID
	record.OrderID = req.Order.ID
	record.UpdatedAt = req.Now
	s.records[req.GatewayOrderID] = record
	return repositories.MaterializeResult{Order: req.Order}, nil
}

type materialRepo struct{ *memoryStore }

func (r materialRepo) FindByID(_ context.Context, id string) (domain.RawMaterial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	material, ok := r.materials[id]
	if !ok {
		return domain.RawMaterial{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, id, nil)
	}
	return material, nil
}

func (r materialRepo) ApplyMutation(_ context.Context, mutation repositories.RawMaterialMutation) (repositories.RawMaterialMutationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyCalls++
	material, ok := r.materials[mutation.RawMaterialID]
	if !ok {
		return repositories.RawMaterialMutationResult{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, mutation.RawMaterialID, nil)
	}
	next := material.Quantity + mutation.Entry.Delta
	if next < 0 {
		return repositories.RawMaterialMutationResult{}, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, mutation.RawMaterialID, nil)
	}
	entry := mutation.Entry
	entry.PreviousQuantity = material.Quantity
	entry.NewQuantity = next
	material.Quantity = next
	material.Availability = domain.AvailabilityFor(next, material.MinQuantity)
	material.UpdatedAt = mutation.Now
	r.materials[material.ID] = material
	r.ledger[material.ID] = append(r.ledger[material.ID], entry)
	if mutation.Usage != nil {
		r.usage = append(r.usage, *mutation.Usage)
	}
	return repositories.RawMaterialMutationResult{Material: material, Entry: entry}, nil
}

func (r materialRepo) ListLedger(_ context.Context, query repositories.LedgerListQuery) (domain.CursorPage[domain.LedgerEntry], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := append([]domain.LedgerEntry(nil), r.ledger[query.RawMaterialID]...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	start := 0
	if query.Pagination.PageToken != "" {
		n, err := strconv.Atoi(query.Pagination.PageToken)
		if err != nil {
			return domain.CursorPage[domain.LedgerEntry]{}, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
		}
		start = n
	}
	end := start + query.Pagination.PageSize
	page := domain.CursorPage[domain.LedgerEntry]{}
	if end < len(entries) {
		page.NextPageToken = strconv.Itoa(end)
	} else {
		end = len(entries)
	}
	if start < end {
		page.Items = entries[start:end]
	}
	return page, nil
}

func (r materialRepo) LedgerTotals(_ context.Context, id string) (repositories.LedgerTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.ledger[id]
	totals := repositories.LedgerTotals{Entries: int64(len(entries))}
	for i, entry := range entries {
		if i == 0 {
			totals.OpeningBalance = entry.PreviousQuantity
		}
		totals.DeltaSum += entry.Delta
	}
	return totals, nil
}

func (s *memoryStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memoryStore) record(id string) domain.PaymentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

// fakeGateway stands in for payments.Manager; callbacks are signed like the HTTP gateway signs them.
type fakeGateway struct {
	mu        sync.Mutex
	secret    []byte
	createErr error
	block     bool
	seq       int
	requests  []payments.OrderRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{secret: []byte("gateway-secret")}
}

func (g *fakeGateway) CreateOrder(ctx context.Context, _ payments.PaymentContext, req payments.OrderRequest) (payments.GatewayOrder, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	block, createErr := g.block, g.createErr
	g.seq++
	id := fmt.Sprintf("order_%03d", g.seq)
	g.mu.Unlock()
	if block {
		<-ctx.Done()
		return payments.GatewayOrder{}, fmt.Errorf("%w: %v", payments.ErrUpstream, ctx.Err())
	}
	if createErr != nil {
		return payments.GatewayOrder{}, createErr
	}
	return payments.GatewayOrder{ID: id, Provider: "razorpay", Amount: req.Amount, Currency: req.Currency, KeyID: "rzp_test"}, nil
}

func (g *fakeGateway) VerifyPayment(_ context.Context, _ string, req payments.VerifyRequest) error {
	expected := payments.SignCallback(g.secret, req.GatewayOrderID, req.GatewayPaymentID)
	if !hmac.Equal([]byte(expected), []byte(req.Signature)) {
		return payments.ErrInvalidSignature
	}
	return nil
}

func (g *fakeGateway) sign(orderID, paymentID string) string {
	return payments.SignCallback(g.secret, orderID, paymentID)
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}
