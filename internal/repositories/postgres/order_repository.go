package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

type addressJSON struct {
	ID         string  `json:"id,omitempty"`
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      *string `json:"state,omitempty"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
	IsDefault  bool    `json:"isDefault"`
}

type courierJSON struct {
	Name           string `json:"name"`
	TrackingNumber string `json:"trackingNumber"`
	TrackingURL    string `json:"trackingUrl,omitempty"`
}

// OrderRepository reads materialized orders.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) (*OrderRepository, error) {
	if db == nil {
		return nil, errors.New("order repository requires database")
	}
	return &OrderRepository{db: db}, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := loadOrder(ctx, r.db, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, WrapError("orders.find", err)
	}
	return order, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadOrder(ctx context.Context, q queryer, orderID string) (domain.Order, error) {
	var (
		o                     domain.Order
		status, paymentStatus string
		address, courier      []byte
		paidAt                sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, order_number, user_id, status, payment_status, currency, subtotal, discount, total_amount,
		       shipping_address, design_request_id, promo_code_id, gateway_order_id, gateway_payment_id, courier,
		       created_at, updated_at, paid_at
		FROM orders
		WHERE id = $1`, orderID).Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &status, &paymentStatus, &o.Currency, &o.Subtotal, &o.Discount, &o.TotalAmount,
		&address, &o.DesignRequestID, &o.PromoCodeID, &o.GatewayOrderID, &o.GatewayPaymentID, &courier,
		&o.CreatedAt, &o.UpdatedAt, &paidAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.OrderPaymentStatus(paymentStatus)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	o.PaidAt = timePtr(paidAt)
	if len(address) > 0 {
		var doc addressJSON
		if err := json.Unmarshal(address, &doc); err != nil {
			return domain.Order{}, fmt.Errorf("decode shipping address: %w", err)
		}
		snapshot := domain.Address(doc)
		o.ShippingAddress = &snapshot
	}
	if len(courier) > 0 {
		var doc courierJSON
		if err := json.Unmarshal(courier, &doc); err != nil {
			return domain.Order{}, fmt.Errorf("decode courier: %w", err)
		}
		info := domain.CourierInfo(doc)
		o.Courier = &info
	}

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, name, quantity, unit_price, total
		FROM order_items
		WHERE order_id = $1
		ORDER BY position`, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice, &item.Total); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func insertOrder(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	var address, courier sql.NullString
	if order.ShippingAddress != nil {
		raw, err := json.Marshal(addressJSON(order.ShippingAddress.Clone()))
		if err != nil {
			return fmt.Errorf("encode shipping address: %w", err)
		}
		address = sql.NullString{String: string(raw), Valid: true}
	}
	if order.Courier != nil {
		raw, err := json.Marshal(courierJSON(*order.Courier))
		if err != nil {
			return fmt.Errorf("encode courier: %w", err)
		}
		courier = sql.NullString{String: string(raw), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, user_id, status, payment_status, currency, subtotal, discount, total_amount,
			shipping_address, design_request_id, promo_code_id, gateway_order_id, gateway_payment_id, courier,
			created_at, updated_at, paid_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		order.ID, order.OrderNumber, order.UserID, string(order.Status), string(order.PaymentStatus), order.Currency,
		order.Subtotal, order.Discount, order.TotalAmount, address, order.DesignRequestID, order.PromoCodeID,
		order.GatewayOrderID, order.GatewayPaymentID, courier, order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
		nullTime(order.PaidAt),
	); err != nil {
		return err
	}
	for i, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, name, quantity, unit_price, total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, i, item.ProductID, item.Name, item.Quantity, item.UnitPrice, item.Total,
		); err != nil {
			return err
		}
	}
	return nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
