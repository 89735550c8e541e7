package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/platform/auth"
	"github.com/hanko-field/commerce/internal/platform/httpx"
	"github.com/hanko-field/commerce/internal/platform/pagination"
	"github.com/hanko-field/commerce/internal/services"
)

const (
	maxInventoryRequestBody = 4 * 1024
	defaultLedgerPageSize   = 50
	maxLedgerPageSize       = 200
)

// InventoryHandlers exposes raw material stock operations to operations staff.
type InventoryHandlers struct {
	authn  *auth.Authenticator
	ledger services.InventoryLedger
}

// NewInventoryHandlers constructs inventory handlers restricted to staff and admin roles.
func NewInventoryHandlers(authn *auth.Authenticator, ledger services.InventoryLedger) *InventoryHandlers {
	return &InventoryHandlers{authn: authn, ledger: ledger}
}

// Routes registers raw material endpoints.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	group.Route("/raw-materials/{rawMaterialId}", func(rm chi.Router) {
		rm.Post("/usage", h.recordUsage)
		rm.Post("/restock", h.restock)
		rm.Get("/ledger", h.listLedger)
		rm.Get("/reconcile", h.reconcile)
	})
}

type recordUsageRequest struct {
	QuantityUsed int64  `json:"quantityUsed"`
	Reason       string `json:"reason"`
	Category     string `json:"category"`
	Note         string `json:"note"`
}

type restockRequest struct {
	Quantity int64  `json:"quantity"`
	Reason   string `json:"reason"`
	Note     string `json:"note"`
}

type ledgerMutationResponse struct {
	RawMaterialID string `json:"rawMaterialId"`
	Quantity      int64  `json:"quantity"`
	Availability  string `json:"availability"`
	LedgerEntryID string `json:"ledgerEntryId"`
}

type ledgerEntryResponse struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	PreviousQuantity int64  `json:"previousQuantity"`
	Delta            int64  `json:"delta"`
	NewQuantity      int64  `json:"newQuantity"`
	Reason           string `json:"reason,omitempty"`
	Category         string `json:"category,omitempty"`
	Note             string `json:"note,omitempty"`
	Actor            string `json:"actor,omitempty"`
	CreatedAt        string `json:"createdAt"`
}

type ledgerPageResponse struct {
	Items         []ledgerEntryResponse `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type reconcileResponse struct {
	RawMaterialID  string `json:"rawMaterialId"`
	Quantity       int64  `json:"quantity"`
	OpeningBalance int64  `json:"openingBalance"`
	LedgerSum      int64  `json:"ledgerSum"`
	Entries        int64  `json:"entries"`
	Expected       int64  `json:"expected"`
	Consistent     bool   `json:"consistent"`
	CheckedAt      string `json:"checkedAt"`
}

func (h *InventoryHandlers) recordUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req recordUsageRequest
	if !decodeJSONBody(w, r, maxInventoryRequestBody, &req) {
		return
	}
	result, err := h.ledger.RecordUsage(ctx, services.RecordUsageCommand{
		RawMaterialID: strings.TrimSpace(chi.URLParam(r, "rawMaterialId")),
		QuantityUsed:  req.QuantityUsed,
		Reason:        req.Reason,
		Category:      req.Category,
		Note:          req.Note,
		Actor:         identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newLedgerMutationResponse(result))
}

func (h *InventoryHandlers) restock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req restockRequest
	if !decodeJSONBody(w, r, maxInventoryRequestBody, &req) {
		return
	}
	result, err := h.ledger.Restock(ctx, services.RestockCommand{
		RawMaterialID: strings.TrimSpace(chi.URLParam(r, "rawMaterialId")),
		Quantity:      req.Quantity,
		Reason:        req.Reason,
		Note:          req.Note,
		Actor:         identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newLedgerMutationResponse(result))
}

func (h *InventoryHandlers) listLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	params, err := pagination.Parse(r,
		pagination.WithDefaultPageSize(defaultLedgerPageSize),
		pagination.WithMaxPageSize(maxLedgerPageSize),
	)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.ledger.ListLedger(ctx, chi.URLParam(r, "rawMaterialId"), domain.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := ledgerPageResponse{
		Items:         make([]ledgerEntryResponse, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, entry := range page.Items {
		resp.Items = append(resp.Items, ledgerEntryResponse{
			ID:               entry.ID,
			Kind:             string(entry.Kind),
			PreviousQuantity: entry.PreviousQuantity,
			Delta:            entry.Delta,
			NewQuantity:      entry.NewQuantity,
			Reason:           entry.Reason,
			Category:         entry.Category,
			Note:             entry.Note,
			Actor:            entry.Actor,
			CreatedAt:        formatTime(entry.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *InventoryHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	result, err := h.ledger.Reconcile(ctx, chi.URLParam(r, "rawMaterialId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reconcileResponse{
		RawMaterialID:  result.RawMaterialID,
		Quantity:       result.Quantity,
		OpeningBalance: result.OpeningBalance,
		LedgerSum:      result.LedgerSum,
		Entries:        result.Entries,
		Expected:       result.Expected,
		Consistent:     result.Consistent,
		CheckedAt:      formatTime(result.CheckedAt),
	})
}

func newLedgerMutationResponse(result services.LedgerMutationResult) ledgerMutationResponse {
	return ledgerMutationResponse{
		RawMaterialID: result.RawMaterialID,
		Quantity:      result.Quantity,
		Availability:  string(result.Availability),
		LedgerEntryID: result.LedgerEntryID,
	}
}
