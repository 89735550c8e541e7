package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/commerce/internal/platform/auth"
	"github.com/hanko-field/commerce/internal/platform/httpx"
	"github.com/hanko-field/commerce/internal/platform/requestctx"
	"github.com/hanko-field/commerce/internal/services"
)

const defaultMaxBodySize = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads a bounded JSON body into target and writes the 400/413 response itself on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, target any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// writeServiceError maps service sentinels onto the public error envelope. Unknown errors are logged
// and surface as a generic 500.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "resource belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock for requested quantity", http.StatusConflict))
	case errors.Is(err, services.ErrInvalidQuantity):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPreconditionFailed):
		httpx.WriteError(ctx, w, httpx.NewError("precondition_failed", "resource is not in a payable state", http.StatusConflict))
	case errors.Is(err, services.ErrPromoExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("promo_exhausted", "promo code is no longer available", http.StatusConflict))
	case errors.Is(err, services.ErrAmountTooSmall):
		httpx.WriteError(ctx, w, httpx.NewError("amount_too_small", "amount is below the payment minimum", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrSignatureMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("signature_mismatch", "payment signature could not be verified", http.StatusBadRequest))
	case errors.Is(err, services.ErrUpstreamFailure):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_failure", "payment gateway unavailable", http.StatusBadGateway).AsRetryable())
	case errors.Is(err, services.ErrConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "resource was modified concurrently; retry", http.StatusConflict).AsRetryable())
	case errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "service temporarily unavailable", http.StatusServiceUnavailable).AsRetryable())
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
