package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
	pfirestore "github.com/hanko-field/commerce/internal/platform/firestore"
	"github.com/hanko-field/commerce/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	Name              string    `firestore:"name"`
	SKU               string    `firestore:"sku,omitempty"`
	UnitPrice         int64     `firestore:"unitPrice"`
	Currency          string    `firestore:"currency"`
	StockQuantity     int64     `firestore:"stockQuantity"`
	LowStockThreshold int64     `firestore:"lowStockThreshold"`
	Availability      string    `firestore:"availability"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	availability := domain.Availability(strings.TrimSpace(d.Availability))
	if availability == "" {
		availability = domain.AvailabilityFor(d.StockQuantity, d.LowStockThreshold)
	}
	return domain.Product{
		ID:                id,
		Name:              strings.TrimSpace(d.Name),
		SKU:               strings.TrimSpace(d.SKU),
		UnitPrice:         d.UnitPrice,
		Currency:          strings.ToUpper(strings.TrimSpace(d.Currency)),
		StockQuantity:     d.StockQuantity,
		LowStockThreshold: d.LowStockThreshold,
		Availability:      availability,
		UpdatedAt:         d.UpdatedAt,
	}
}

// ProductRepository reads catalogue products from Firestore.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil)}, nil
}

// FindByIDs batch-reads the products. Unknown ids are absent from the result.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	docs, err := r.base.GetAll(ctx, unique)
	if err != nil {
		return nil, err
	}
	products := make(map[string]domain.Product, len(docs))
	for _, doc := range docs {
		products[doc.ID] = doc.Data.toDomain(doc.ID)
	}
	return products, nil
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
