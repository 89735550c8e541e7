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

const promoCodesCollection = "promoCodes"

type promoCodeDocument struct {
	Code              string     `firestore:"code"`
	DiscountType      string     `firestore:"discountType"`
	DiscountValue     int64      `firestore:"discountValue"`
	MaxDiscountAmount *int64     `firestore:"maxDiscountAmount,omitempty"`
	MinOrderAmount    *int64     `firestore:"minOrderAmount,omitempty"`
	MaxUses           int64      `firestore:"maxUses"`
	UsedCount         int64      `firestore:"usedCount"`
	ExpiresAt         *time.Time `firestore:"expiresAt,omitempty"`
	IsActive          bool       `firestore:"isActive"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}

func (d promoCodeDocument) toDomain(id string) domain.PromoCode {
	return domain.PromoCode{
		ID:                id,
		Code:              strings.ToUpper(strings.TrimSpace(d.Code)),
		DiscountType:      domain.DiscountType(strings.ToLower(strings.TrimSpace(d.DiscountType))),
		DiscountValue:     d.DiscountValue,
		MaxDiscountAmount: d.MaxDiscountAmount,
		MinOrderAmount:    d.MinOrderAmount,
		MaxUses:           d.MaxUses,
		UsedCount:         d.UsedCount,
		ExpiresAt:         d.ExpiresAt,
		IsActive:          d.IsActive,
		UpdatedAt:         d.UpdatedAt,
	}
}

// PromoCodeRepository reads promo definitions. Redemption is counted by MaterializationRepository.
type PromoCodeRepository struct {
	base *pfirestore.BaseRepository[promoCodeDocument]
}

// NewPromoCodeRepository constructs a Firestore-backed promo code repository.
func NewPromoCodeRepository(provider *pfirestore.Provider) (*PromoCodeRepository, error) {
	if provider == nil {
		return nil, errors.New("promo code repository requires firestore provider")
	}
	return &PromoCodeRepository{base: pfirestore.NewBaseRepository[promoCodeDocument](provider, promoCodesCollection, nil)}, nil
}

func (r *PromoCodeRepository) FindByID(ctx context.Context, promoID string) (domain.PromoCode, error) {
	if r == nil || r.base == nil {
		return domain.PromoCode{}, errors.New("promo code repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(promoID))
	if err != nil {
		return domain.PromoCode{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

var _ repositories.PromoCodeRepository = (*PromoCodeRepository)(nil)
