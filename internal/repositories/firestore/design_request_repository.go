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

const designRequestsCollection = "designRequests"

type designRequestDocument struct {
	UserID           string    `firestore:"userId"`
	Title            string    `firestore:"title"`
	Status           string    `firestore:"status"`
	PriceLocked      bool      `firestore:"priceLocked"`
	FinalAmount      *int64    `firestore:"finalAmount,omitempty"`
	ConvertedToOrder bool      `firestore:"convertedToOrder"`
	OrderID          string    `firestore:"orderId,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func (d designRequestDocument) toDomain(id string) domain.DesignRequest {
	return domain.DesignRequest{
		ID:               id,
		UserID:           strings.TrimSpace(d.UserID),
		Title:            strings.TrimSpace(d.Title),
		Status:           domain.DesignRequestStatus(strings.TrimSpace(d.Status)),
		PriceLocked:      d.PriceLocked,
		FinalAmount:      d.FinalAmount,
		ConvertedToOrder: d.ConvertedToOrder,
		OrderID:          strings.TrimSpace(d.OrderID),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// DesignRequestRepository reads custom-print quotations.
type DesignRequestRepository struct {
	base *pfirestore.BaseRepository[designRequestDocument]
}

// NewDesignRequestRepository constructs a Firestore-backed design request repository.
func NewDesignRequestRepository(provider *pfirestore.Provider) (*DesignRequestRepository, error) {
	if provider == nil {
		return nil, errors.New("design request repository requires firestore provider")
	}
	return &DesignRequestRepository{base: pfirestore.NewBaseRepository[designRequestDocument](provider, designRequestsCollection, nil)}, nil
}

func (r *DesignRequestRepository) FindByID(ctx context.Context, designRequestID string) (domain.DesignRequest, error) {
	if r == nil || r.base == nil {
		return domain.DesignRequest{}, errors.New("design request repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(designRequestID))
	if err != nil {
		return domain.DesignRequest{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

var _ repositories.DesignRequestRepository = (*DesignRequestRepository)(nil)
