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

const ordersCollection = "orders"

type orderDocument struct {
	OrderNumber      string               `firestore:"orderNumber"`
	UserID           string               `firestore:"userId"`
	Status           string               `firestore:"status"`
	PaymentStatus    string               `firestore:"paymentStatus"`
	Currency         string               `firestore:"currency"`
	Subtotal         int64                `firestore:"subtotal"`
	Discount         int64                `firestore:"discount"`
	TotalAmount      int64                `firestore:"totalAmount"`
	Items            []chargeLineDocument `firestore:"items"`
	ShippingAddress  *addressDocument     `firestore:"shippingAddress,omitempty"`
	DesignRequestID  string               `firestore:"designRequestId,omitempty"`
	PromoCodeID      string               `firestore:"promoCodeId,omitempty"`
	GatewayOrderID   string               `firestore:"gatewayOrderId"`
	GatewayPaymentID string               `firestore:"gatewayPaymentId"`
	Courier          *courierDocument     `firestore:"courier,omitempty"`
	CreatedAt        time.Time            `firestore:"createdAt"`
	UpdatedAt        time.Time            `firestore:"updatedAt"`
	PaidAt           *time.Time           `firestore:"paidAt,omitempty"`
}

type courierDocument struct {
	Name           string `firestore:"name"`
	TrackingNumber string `firestore:"trackingNumber,omitempty"`
	TrackingURL    string `firestore:"trackingUrl,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]chargeLineDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, chargeLineDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	doc := orderDocument{
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		Currency:         order.Currency,
		Subtotal:         order.Subtotal,
		Discount:         order.Discount,
		TotalAmount:      order.TotalAmount,
		Items:            items,
		DesignRequestID:  order.DesignRequestID,
		PromoCodeID:      order.PromoCodeID,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: order.GatewayPaymentID,
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
		PaidAt:           order.PaidAt,
	}
	if order.ShippingAddress != nil {
		addr := newAddressDocument(*order.ShippingAddress)
		doc.ShippingAddress = &addr
	}
	if order.Courier != nil {
		doc.Courier = &courierDocument{
			Name:           order.Courier.Name,
			TrackingNumber: order.Courier.TrackingNumber,
			TrackingURL:    order.Courier.TrackingURL,
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:               id,
		OrderNumber:      d.OrderNumber,
		UserID:           d.UserID,
		Status:           domain.OrderStatus(strings.TrimSpace(d.Status)),
		PaymentStatus:    domain.OrderPaymentStatus(strings.TrimSpace(d.PaymentStatus)),
		Currency:         d.Currency,
		Subtotal:         d.Subtotal,
		Discount:         d.Discount,
		TotalAmount:      d.TotalAmount,
		Items:            make([]domain.OrderItem, 0, len(d.Items)),
		DesignRequestID:  d.DesignRequestID,
		PromoCodeID:      d.PromoCodeID,
		GatewayOrderID:   d.GatewayOrderID,
		GatewayPaymentID: d.GatewayPaymentID,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		PaidAt:           d.PaidAt,
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	if d.ShippingAddress != nil {
		addr := d.ShippingAddress.toDomain("")
		order.ShippingAddress = &addr
	}
	if d.Courier != nil {
		order.Courier = &domain.CourierInfo{
			Name:           d.Courier.Name,
			TrackingNumber: d.Courier.TrackingNumber,
			TrackingURL:    d.Courier.TrackingURL,
		}
	}
	return order
}

// OrderRepository reads materialized orders.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil)}, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
