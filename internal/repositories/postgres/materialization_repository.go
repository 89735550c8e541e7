package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

// MaterializationRepository commits an order with its side effects in one SQL transaction. The payment
// record row is locked first so concurrent verifications of the same payment serialize on it; every other
// side effect is a guarded UPDATE whose row count decides between commit and abort.
type MaterializationRepository struct {
	db *sql.DB
}

func NewMaterializationRepository(db *sql.DB) (*MaterializationRepository, error) {
	if db == nil {
		return nil, errors.New("materialization repository requires database")
	}
	return &MaterializationRepository{db: db}, nil
}

func (r *MaterializationRepository) Materialize(ctx context.Context, req repositories.MaterializeRequest) (repositories.MaterializeResult, error) {
	if strings.TrimSpace(req.Order.ID) == "" {
		return repositories.MaterializeResult{}, errors.New("materialize: order id is required")
	}
	now := req.Now.UTC()

	var result repositories.MaterializeResult
	err := withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		record, err := scanPaymentRecord(tx.QueryRowContext(ctx, selectPaymentRecord+` WHERE gateway_order_id = $1 FOR UPDATE`, req.GatewayOrderID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repositories.NewMaterializeError(repositories.MaterializeErrorPaymentNotFound, req.GatewayOrderID, err)
			}
			return err
		}

		switch record.Status {
		case domain.PaymentStatusSuccess:
			if record.OrderID == "" {
				return repositories.NewMaterializeError(repositories.MaterializeErrorPaymentFailed, "payment settled without order", nil)
			}
			existing, err := loadOrder(ctx, tx, record.OrderID)
			if err != nil {
				return err
			}
			result = repositories.MaterializeResult{Order: existing, Replayed: true}
			return nil
		case domain.PaymentStatusFailed:
			return repositories.NewMaterializeError(repositories.MaterializeErrorPaymentFailed, req.GatewayOrderID, nil)
		}

		if req.Source == domain.PaymentSourceDesignRequest {
			res, err := tx.ExecContext(ctx, `
				UPDATE design_requests
				SET status = $2, converted_to_order = TRUE, order_id = $3, updated_at = $4
				WHERE id = $1 AND status = $5 AND NOT converted_to_order`,
				req.SourceID, string(domain.DesignRequestStatusPaid), req.Order.ID, now,
				string(domain.DesignRequestStatusPaymentPending),
			)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return repositories.NewMaterializeError(repositories.MaterializeErrorSourceChanged, "design request "+req.SourceID+" is no longer payment pending", nil)
			}
		}

		if err := decrementStock(ctx, tx, req.StockLines, now); err != nil {
			return err
		}

		if promoID := strings.TrimSpace(req.PromoCodeID); promoID != "" {
			res, err := tx.ExecContext(ctx, `
				UPDATE promo_codes
				SET used_count = used_count + 1, updated_at = $2
				WHERE id = $1 AND used_count < max_uses`, promoID, now)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return repositories.NewMaterializeError(repositories.MaterializeErrorPromoExhausted, "promo "+promoID+" has no remaining uses", nil)
			}
		}

		if req.Source == domain.PaymentSourceCart {
			if _, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE user_id = $1`, req.SourceID); err != nil {
				return err
			}
		}

		if err := insertOrder(ctx, tx, req.Order); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE payment_records
			SET status = $2, gateway_payment_id = $3, order_id = $4, updated_at = $5
			WHERE gateway_order_id = $1`,
			req.GatewayOrderID, string(domain.PaymentStatusSuccess), req.GatewayPaymentID, req.Order.ID, now,
		); err != nil {
			return err
		}

		result = repositories.MaterializeResult{Order: req.Order}
		return nil
	})
	if err != nil {
		return repositories.MaterializeResult{}, WrapError("orders.materialize", err)
	}
	return result, nil
}

// decrementStock applies guarded decrements in product id order so concurrent checkouts lock rows
// in the same sequence.
func decrementStock(ctx context.Context, tx *sql.Tx, lines []domain.CartLine, now time.Time) error {
	sorted := append([]domain.CartLine(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, line := range sorted {
		var remaining, threshold int64
		err := tx.QueryRowContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $1, updated_at = $3
			WHERE id = $2 AND stock_quantity >= $1
			RETURNING stock_quantity, low_stock_threshold`,
			line.Quantity, line.ProductID, now,
		).Scan(&remaining, &threshold)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, line.ProductID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "product "+line.ProductID+" not found", nil)
			}
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
				fmt.Sprintf("product %s cannot cover %d units", line.ProductID, line.Quantity), nil)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE products SET availability = $2 WHERE id = $1`,
			line.ProductID, string(domain.AvailabilityFor(remaining, threshold))); err != nil {
			return err
		}
	}
	return nil
}

var _ repositories.MaterializationRepository = (*MaterializationRepository)(nil)
