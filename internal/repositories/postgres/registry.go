package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hanko-field/commerce/internal/repositories"
)

// Registry bundles the PostgreSQL repositories over one connection pool.
type Registry struct {
	db *sql.DB

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

func NewRegistry(db *sql.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("postgres registry requires database")
	}
	return &Registry{
		db:             db,
		products:       &ProductRepository{db: db},
		promoCodes:     &PromoCodeRepository{db: db},
		carts:          &CartRepository{db: db},
		designRequests: &DesignRequestRepository{db: db},
		addresses:      &AddressRepository{db: db},
		paymentRecords: &PaymentRecordRepository{db: db},
		orders:         &OrderRepository{db: db},
		materializer:   &MaterializationRepository{db: db},
		rawMaterials:   &RawMaterialRepository{db: db},
		counters:       &CounterRepository{db: db, now: time.Now},
	}, nil
}

func (r *Registry) Close(context.Context) error    { return r.db.Close() }
func (r *Registry) Ping(ctx context.Context) error { return WrapError("postgres.ping", r.db.PingContext(ctx)) }

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
