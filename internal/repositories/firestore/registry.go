package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/hanko-field/commerce/internal/platform/firestore"
	"github.com/hanko-field/commerce/internal/repositories"
)

// Registry bundles the Firestore repositories behind one provider.
type Registry struct {
	provider *pfirestore.Provider

	products       *ProductRepository
	promoCodes     *PromoCodeRepository
	carts          *CartRepository
	designRequests *DesignRequestRepository
	addresses      *AddressRepository
	paymentRecords *PaymentRecordRepository
	orders         *OrderRepository
	materializer   *MaterializationRepository
	rawMaterials   *RawMaterialRepository
	counters       *CounterRepository
}

// NewRegistry constructs every Firestore repository. The client is dialled lazily on first use.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider}
	var err error
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}
	if reg.promoCodes, err = NewPromoCodeRepository(provider); err != nil {
		return nil, fmt.Errorf("promo codes: %w", err)
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("carts: %w", err)
	}
	if reg.designRequests, err = NewDesignRequestRepository(provider); err != nil {
		return nil, fmt.Errorf("design requests: %w", err)
	}
	if reg.addresses, err = NewAddressRepository(provider); err != nil {
		return nil, fmt.Errorf("addresses: %w", err)
	}
	if reg.paymentRecords, err = NewPaymentRecordRepository(provider); err != nil {
		return nil, fmt.Errorf("payment records: %w", err)
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	if reg.materializer, err = NewMaterializationRepository(provider); err != nil {
		return nil, fmt.Errorf("materializer: %w", err)
	}
	if reg.rawMaterials, err = NewRawMaterialRepository(provider); err != nil {
		return nil, fmt.Errorf("raw materials: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("counters: %w", err)
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }
func (r *Registry) Ping(ctx context.Context) error  { return r.provider.Ping(ctx) }

func (r *Registry) Products() repositories.ProductRepository             { return r.products }
func (r *Registry) PromoCodes() repositories.PromoCodeRepository         { return r.promoCodes }
func (r *Registry) Carts() repositories.CartRepository                   { return r.carts }
func (r *Registry) DesignRequests() repositories.DesignRequestRepository { return r.designRequests }
func (r *Registry) Addresses() repositories.AddressRepository            { return r.addresses }
func (r *Registry) PaymentRecords() repositories.PaymentRecordRepository { return r.paymentRecords }
func (r *Registry) Orders() repositories.OrderRepository                 { return r.orders }
func (r *Registry) Materializer() repositories.MaterializationRepository { return r.materializer }
func (r *Registry) RawMaterials() repositories.RawMaterialRepository     { return r.rawMaterials }
func (r *Registry) Counters() repositories.CounterRepository             { return r.counters }

var _ repositories.Registry = (*Registry)(nil)
