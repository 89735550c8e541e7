package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

// ProductRepository reads products by primary key.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) (*ProductRepository, error) {
	if db == nil {
		return nil, errors.New("product repository requires database")
	}
	return &ProductRepository{db: db}, nil
}

// FindByIDs returns the products that exist; unknown ids are absent from the result.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
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
	out := make(map[string]domain.Product, len(unique))
	if len(unique) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, sku, unit_price, currency, stock_quantity, low_stock_threshold, availability, updated_at
		FROM products
		WHERE id = ANY($1)`, pq.Array(unique))
	if err != nil {
		return nil, WrapError("products.find_by_ids", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p            domain.Product
			availability string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.UnitPrice, &p.Currency, &p.StockQuantity, &p.LowStockThreshold, &availability, &p.UpdatedAt); err != nil {
			return nil, WrapError("products.find_by_ids", err)
		}
		p.Availability = domain.Availability(availability)
		p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
		p.UpdatedAt = p.UpdatedAt.UTC()
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError("products.find_by_ids", err)
	}
	return out, nil
}

// PromoCodeRepository reads promo codes by id.
type PromoCodeRepository struct {
	db *sql.DB
}

func NewPromoCodeRepository(db *sql.DB) (*PromoCodeRepository, error) {
	if db == nil {
		return nil, errors.New("promo code repository requires database")
	}
	return &PromoCodeRepository{db: db}, nil
}

func (r *PromoCodeRepository) FindByID(ctx context.Context, promoID string) (domain.PromoCode, error) {
	var (
		p            domain.PromoCode
		discountType string
		maxDiscount  sql.NullInt64
		minOrder     sql.NullInt64
		expiresAt    sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, discount_type, discount_value, max_discount_amount, min_order_amount,
		       max_uses, used_count, expires_at, is_active, updated_at
		FROM promo_codes
		WHERE id = $1`, strings.TrimSpace(promoID)).Scan(
		&p.ID, &p.Code, &discountType, &p.DiscountValue, &maxDiscount, &minOrder,
		&p.MaxUses, &p.UsedCount, &expiresAt, &p.IsActive, &p.UpdatedAt,
	)
	if err != nil {
		return domain.PromoCode{}, WrapError("promo_codes.find", err)
	}
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	p.DiscountType = domain.DiscountType(strings.ToLower(strings.TrimSpace(discountType)))
	p.MaxDiscountAmount = int64Ptr(maxDiscount)
	p.MinOrderAmount = int64Ptr(minOrder)
	p.ExpiresAt = timePtr(expiresAt)
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// CartRepository reads cart lines keyed by owner.
type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) (*CartRepository, error) {
	if db == nil {
		return nil, errors.New("cart repository requires database")
	}
	return &CartRepository{db: db}, nil
}

// GetCart returns a not-found error when the user has no lines.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, updated_at
		FROM cart_lines
		WHERE user_id = $1
		ORDER BY position`, userID)
	if err != nil {
		return domain.Cart{}, WrapError("carts.get", err)
	}
	defer rows.Close()

	cart := domain.Cart{ID: userID, UserID: userID}
	for rows.Next() {
		var (
			line      domain.CartLine
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&line.ProductID, &line.Quantity, &updatedAt); err != nil {
			return domain.Cart{}, WrapError("carts.get", err)
		}
		if updatedAt.Valid && updatedAt.Time.After(cart.UpdatedAt) {
			cart.UpdatedAt = updatedAt.Time.UTC()
		}
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, WrapError("carts.get", err)
	}
	if len(cart.Lines) == 0 {
		return domain.Cart{}, notFound("carts.get", "cart "+userID)
	}
	return cart, nil
}

// DesignRequestRepository reads custom-print quotations.
type DesignRequestRepository struct {
	db *sql.DB
}

func NewDesignRequestRepository(db *sql.DB) (*DesignRequestRepository, error) {
	if db == nil {
		return nil, errors.New("design request repository requires database")
	}
	return &DesignRequestRepository{db: db}, nil
}

func (r *DesignRequestRepository) FindByID(ctx context.Context, designRequestID string) (domain.DesignRequest, error) {
	var (
		d           domain.DesignRequest
		status      string
		finalAmount sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, status, price_locked, final_amount, converted_to_order, order_id, created_at, updated_at
		FROM design_requests
		WHERE id = $1`, strings.TrimSpace(designRequestID)).Scan(
		&d.ID, &d.UserID, &d.Title, &status, &d.PriceLocked, &finalAmount, &d.ConvertedToOrder, &d.OrderID, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return domain.DesignRequest{}, WrapError("design_requests.find", err)
	}
	d.Status = domain.DesignRequestStatus(status)
	d.FinalAmount = int64Ptr(finalAmount)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

// AddressRepository resolves shipping addresses.
type AddressRepository struct {
	db *sql.DB
}

func NewAddressRepository(db *sql.DB) (*AddressRepository, error) {
	if db == nil {
		return nil, errors.New("address repository requires database")
	}
	return &AddressRepository{db: db}, nil
}

// DefaultShipping returns the most recently updated default shipping address.
func (r *AddressRepository) DefaultShipping(ctx context.Context, userID string) (domain.Address, error) {
	var (
		a                   domain.Address
		line2, state, phone sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, recipient, line1, line2, city, state, postal_code, country, phone, default_shipping
		FROM addresses
		WHERE user_id = $1 AND default_shipping
		ORDER BY updated_at DESC
		LIMIT 1`, strings.TrimSpace(userID)).Scan(
		&a.ID, &a.Recipient, &a.Line1, &line2, &a.City, &state, &a.PostalCode, &a.Country, &phone, &a.IsDefault,
	)
	if err != nil {
		return domain.Address{}, WrapError("addresses.default_shipping", err)
	}
	a.Line2 = stringPtr(line2)
	a.State = stringPtr(state)
	a.Phone = stringPtr(phone)
	return a, nil
}

var (
	_ repositories.ProductRepository       = (*ProductRepository)(nil)
	_ repositories.PromoCodeRepository     = (*PromoCodeRepository)(nil)
	_ repositories.CartRepository          = (*CartRepository)(nil)
	_ repositories.DesignRequestRepository = (*DesignRequestRepository)(nil)
	_ repositories.AddressRepository       = (*AddressRepository)(nil)
)
