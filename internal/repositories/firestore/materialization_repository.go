package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hanko-field/commerce/internal/domain"
	pfirestore "github.com/hanko-field/commerce/internal/platform/firestore"
	"github.com/hanko-field/commerce/internal/repositories"
)

// MaterializationRepository commits an order and its side effects in one Firestore transaction. Firestore
// requires every read to happen before the first write, so the transaction reads the payment record, the
// source, the products and the promo up front and only then mutates.
type MaterializationRepository struct {
	provider *pfirestore.Provider
	records  *pfirestore.BaseRepository[paymentRecordDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
	promos   *pfirestore.BaseRepository[promoCodeDocument]
	designs  *pfirestore.BaseRepository[designRequestDocument]
	carts    *pfirestore.BaseRepository[cartDocument]
}

// NewMaterializationRepository constructs the transactional order writer.
func NewMaterializationRepository(provider *pfirestore.Provider) (*MaterializationRepository, error) {
	if provider == nil {
		return nil, errors.New("materialization repository requires firestore provider")
	}
	return &MaterializationRepository{
		provider: provider,
		records:  pfirestore.NewBaseRepository[paymentRecordDocument](provider, paymentRecordsCollection, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
		promos:   pfirestore.NewBaseRepository[promoCodeDocument](provider, promoCodesCollection, nil),
		designs:  pfirestore.NewBaseRepository[designRequestDocument](provider, designRequestsCollection, nil),
		carts:    pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil),
	}, nil
}

type stockRead struct {
	ref      *firestore.DocumentRef
	doc      productDocument
	quantity int64
}

func (r *MaterializationRepository) Materialize(ctx context.Context, req repositories.MaterializeRequest) (repositories.MaterializeResult, error) {
	if r == nil || r.provider == nil {
		return repositories.MaterializeResult{}, errors.New("materialization repository not initialised")
	}
	if strings.TrimSpace(req.Order.ID) == "" {
		return repositories.MaterializeResult{}, errors.New("materialize: order id is required")
	}
	now := req.Now.UTC()

	var result repositories.MaterializeResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.MaterializeResult{}

		recordRef, err := r.records.DocumentRef(ctx, req.GatewayOrderID)
		if err != nil {
			return err
		}
		recordSnap, err := tx.Get(recordRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewMaterializeError(repositories.MaterializeErrorPaymentNotFound, req.GatewayOrderID, err)
			}
			return err
		}
		record, err := r.records.Decode(recordSnap)
		if err != nil {
			return fmt.Errorf("decode payment record %s: %w", req.GatewayOrderID, err)
		}

		switch domain.PaymentStatus(record.Status) {
		case domain.PaymentStatusSuccess:
			if record.OrderID == "" {
				return repositories.NewMaterializeError(repositories.MaterializeErrorPaymentFailed, "payment settled without order", nil)
			}
			orderRef, err := r.orders.DocumentRef(ctx, record.OrderID)
			if err != nil {
				return err
			}
			orderSnap, err := tx.Get(orderRef)
			if err != nil {
				return err
			}
			existing, err := r.orders.Decode(orderSnap)
			if err != nil {
				return fmt.Errorf("decode order %s: %w", record.OrderID, err)
			}
			result = repositories.MaterializeResult{Order: existing.toDomain(record.OrderID), Replayed: true}
			return nil
		case domain.PaymentStatusFailed:
			return repositories.NewMaterializeError(repositories.MaterializeErrorPaymentFailed, req.GatewayOrderID, nil)
		}

		var designRef *firestore.DocumentRef
		if req.Source == domain.PaymentSourceDesignRequest {
			designRef, err = r.designs.DocumentRef(ctx, req.SourceID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(designRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewMaterializeError(repositories.MaterializeErrorSourceChanged, "design request "+req.SourceID+" no longer exists", err)
				}
				return err
			}
			design, err := r.designs.Decode(snap)
			if err != nil {
				return fmt.Errorf("decode design request %s: %w", req.SourceID, err)
			}
			if domain.DesignRequestStatus(design.Status) != domain.DesignRequestStatusPaymentPending || design.ConvertedToOrder {
				return repositories.NewMaterializeError(repositories.MaterializeErrorSourceChanged, fmt.Sprintf("design request %s is %s", req.SourceID, design.Status), nil)
			}
		}

		stocks := make([]stockRead, 0, len(req.StockLines))
		for _, line := range req.StockLines {
			ref, err := r.products.DocumentRef(ctx, line.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "product "+line.ProductID+" not found", err)
				}
				return err
			}
			product, err := r.products.Decode(snap)
			if err != nil {
				return fmt.Errorf("decode product %s: %w", line.ProductID, err)
			}
			if product.StockQuantity < line.Quantity {
				return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, fmt.Sprintf("product %s has %d, requested %d", line.ProductID, product.StockQuantity, line.Quantity), nil)
			}
			stocks = append(stocks, stockRead{ref: ref, doc: product, quantity: line.Quantity})
		}

		var promoRef *firestore.DocumentRef
		if promoID := strings.TrimSpace(req.PromoCodeID); promoID != "" {
			promoRef, err = r.promos.DocumentRef(ctx, promoID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(promoRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewMaterializeError(repositories.MaterializeErrorPromoExhausted, "promo "+promoID+" no longer exists", err)
				}
				return err
			}
			promo, err := r.promos.Decode(snap)
			if err != nil {
				return fmt.Errorf("decode promo %s: %w", promoID, err)
			}
			if promo.UsedCount >= promo.MaxUses {
				return repositories.NewMaterializeError(repositories.MaterializeErrorPromoExhausted, fmt.Sprintf("promo %s used %d of %d", promoID, promo.UsedCount, promo.MaxUses), nil)
			}
		}

		// Writes.
		for _, stock := range stocks {
			remaining := stock.doc.StockQuantity - stock.quantity
			if err := tx.Update(stock.ref, []firestore.Update{
				{Path: "stockQuantity", Value: remaining},
				{Path: "availability", Value: string(domain.AvailabilityFor(remaining, stock.doc.LowStockThreshold))},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}
		if promoRef != nil {
			if err := tx.Update(promoRef, []firestore.Update{
				{Path: "usedCount", Value: firestore.Increment(1)},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}
		if designRef != nil {
			if err := tx.Update(designRef, []firestore.Update{
				{Path: "status", Value: string(domain.DesignRequestStatusPaid)},
				{Path: "convertedToOrder", Value: true},
				{Path: "orderId", Value: req.Order.ID},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}
		if req.Source == domain.PaymentSourceCart {
			cartRef, err := r.carts.DocumentRef(ctx, req.SourceID)
			if err != nil {
				return err
			}
			if err := tx.Delete(cartRef); err != nil {
				return err
			}
		}

		orderRef, err := r.orders.DocumentRef(ctx, req.Order.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, newOrderDocument(req.Order)); err != nil {
			return err
		}
		if err := tx.Update(recordRef, []firestore.Update{
			{Path: "status", Value: string(domain.PaymentStatusSuccess)},
			{Path: "gatewayPaymentId", Value: req.GatewayPaymentID},
			{Path: "orderId", Value: req.Order.ID},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}

		result = repositories.MaterializeResult{Order: req.Order}
		return nil
	})
	if err != nil {
		return repositories.MaterializeResult{}, wrapInventoryError("orders.materialize", err)
	}
	return result, nil
}

var _ repositories.MaterializationRepository = (*MaterializationRepository)(nil)
