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

const cartCollection = "carts"

type cartDocument struct {
	Lines     []cartLineDocument `firestore:"lines"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int64  `firestore:"qty"`
}

// CartRepository reads server-side carts keyed by the owner's user id.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil)}, nil
}

// GetCart loads the cart for the given user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		ID:        doc.ID,
		UserID:    doc.ID,
		Lines:     make([]domain.CartLine, 0, len(doc.Data.Lines)),
		UpdatedAt: doc.Data.UpdatedAt,
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	for _, line := range doc.Data.Lines {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		})
	}
	return cart, nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)
