package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/commerce/internal/platform/httpx"
	"github.com/hanko-field/commerce/internal/services"
)

// OrderStatusHandlers serves the unauthenticated order status page data.
type OrderStatusHandlers struct {
	projector services.OrderStatusProjector
}

// NewOrderStatusHandlers constructs the public order status handlers.
func NewOrderStatusHandlers(projector services.OrderStatusProjector) *OrderStatusHandlers {
	return &OrderStatusHandlers{projector: projector}
}

// Routes registers public order endpoints.
func (h *OrderStatusHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders/{orderId}/status", h.getStatus)
}

type orderStatusResponse struct {
	OrderID      string                    `json:"orderId"`
	OrderNumber  string                    `json:"orderNumber"`
	Status       string                    `json:"status"`
	Label        string                    `json:"label"`
	Color        string                    `json:"color"`
	Icon         string                    `json:"icon"`
	CustomerName string                    `json:"customerName,omitempty"`
	City         string                    `json:"city,omitempty"`
	State        string                    `json:"state,omitempty"`
	Courier      *orderStatusCourier       `json:"courier,omitempty"`
	Items        []orderStatusItemResponse `json:"items"`
	Total        int64                     `json:"total"`
	Currency     string                    `json:"currency"`
	PlacedAt     string                    `json:"placedAt,omitempty"`
}

type orderStatusCourier struct {
	Name           string `json:"name,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	TrackingURL    string `json:"trackingUrl,omitempty"`
}

type orderStatusItemResponse struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

func (h *OrderStatusHandlers) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.projector == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order status unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
		return
	}

	view, err := h.projector.Project(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := orderStatusResponse{
		OrderID:      view.OrderID,
		OrderNumber:  view.OrderNumber,
		Status:       string(view.Status),
		Label:        view.Presentation.Label,
		Color:        view.Presentation.Color,
		Icon:         view.Presentation.Icon,
		CustomerName: view.CustomerName,
		City:         view.City,
		State:        view.State,
		Items:        make([]orderStatusItemResponse, 0, len(view.Items)),
		Total:        view.Total,
		Currency:     view.Currency,
		PlacedAt:     formatTime(view.PlacedAt),
	}
	if view.Courier != nil {
		resp.Courier = &orderStatusCourier{
			Name:           view.Courier.Name,
			TrackingNumber: view.Courier.TrackingNumber,
			TrackingURL:    view.Courier.TrackingURL,
		}
	}
	for _, item := range view.Items {
		resp.Items = append(resp.Items, orderStatusItemResponse{Name: item.Name, Quantity: item.Quantity})
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, resp)
}
