package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

// StatusPresentation is the fixed label, color and icon for an order status.
type StatusPresentation struct {
	Label string
	Color string
	Icon  string
}

// OrderStatusView is the privacy-redacted public projection of an order.
type OrderStatusView struct {
	OrderID      string
	OrderNumber  string
	Status       domain.OrderStatus
	Presentation StatusPresentation
	CustomerName string
	City         string
	State        string
	Courier      *domain.CourierInfo
	Items        []OrderStatusItem
	Total        int64
	Currency     string
	PlacedAt     time.Time
}

// OrderStatusItem keeps only the item name and quantity.
type OrderStatusItem struct {
	Name     string
	Quantity int64
}

// PresentOrderStatus maps the closed status enum onto its presentation.
func PresentOrderStatus(status domain.OrderStatus) StatusPresentation {
	switch status {
	case domain.OrderStatusPendingPayment:
		return StatusPresentation{Label: "Awaiting payment", Color: "amber", Icon: "hourglass"}
	case domain.OrderStatusConfirmed:
		return StatusPresentation{Label: "Order confirmed", Color: "blue", Icon: "check-circle"}
	case domain.OrderStatusProcessing:
		return StatusPresentation{Label: "Being prepared", Color: "indigo", Icon: "printer"}
	case domain.OrderStatusShipped:
		return StatusPresentation{Label: "Shipped", Color: "purple", Icon: "truck"}
	case domain.OrderStatusOutForDelivery:
		return StatusPresentation{Label: "Out for delivery", Color: "orange", Icon: "map-pin"}
	case domain.OrderStatusDelivered:
		return StatusPresentation{Label: "Delivered", Color: "green", Icon: "package-check"}
	case domain.OrderStatusCancelled:
		return StatusPresentation{Label: "Cancelled", Color: "red", Icon: "x-circle"}
	case domain.OrderStatusRefunded:
		return StatusPresentation{Label: "Refunded", Color: "gray", Icon: "rotate-ccw"}
	}
	return StatusPresentation{Label: "Unknown", Color: "gray", Icon: "help-circle"}
}

// OrderStatusProjectorDeps wires the read-only projector.
type OrderStatusProjectorDeps struct {
	Orders repositories.OrderRepository
}

type orderStatusProjector struct {
	orders repositories.OrderRepository
}

// NewOrderStatusProjector constructs the OrderStatusProjector.
func NewOrderStatusProjector(deps OrderStatusProjectorDeps) (OrderStatusProjector, error) {
	if deps.Orders == nil {
		return nil, errors.New("order status projector: order repository is required")
	}
	return &orderStatusProjector{orders: deps.Orders}, nil
}

func (p *orderStatusProjector) Project(ctx context.Context, orderID string) (OrderStatusView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderStatusView{}, fmt.Errorf("%w: orderId is required", ErrValidation)
	}
	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderStatusView{}, translateRepositoryError("orders.find", err)
	}

	view := OrderStatusView{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		Status:       order.Status,
		Presentation: PresentOrderStatus(order.Status),
		Total:        order.TotalAmount,
		Currency:     order.Currency,
		PlacedAt:     order.CreatedAt,
		Items:        make([]OrderStatusItem, 0, len(order.Items)),
	}
	if addr := order.ShippingAddress; addr != nil {
		view.CustomerName = MaskName(addr.Recipient)
		view.City = strings.TrimSpace(addr.City)
		if addr.State != nil {
			view.State = strings.TrimSpace(*addr.State)
		}
	}
	if order.Courier != nil {
		courier := *order.Courier
		view.Courier = &courier
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, OrderStatusItem{Name: item.Name, Quantity: item.Quantity})
	}
	return view, nil
}

// MaskName reduces a full name to "First L.". A Caser is stateful, so each call builds its own.
func MaskName(full string) string {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return ""
	}
	first := cases.Title(language.Und).String(parts[0])
	if len(parts) == 1 {
		return first
	}
	last := parts[len(parts)-1]
	initial, _ := utf8.DecodeRuneInString(last)
	if initial == utf8.RuneError || !unicode.IsLetter(initial) {
		return first
	}
	return first + " " + string(unicode.ToUpper(initial)) + "."
}
