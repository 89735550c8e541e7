package services

import (
	"errors"
	"fmt"

	"github.com/hanko-field/commerce/internal/payments"
	"github.com/hanko-field/commerce/internal/platform/pagination"
	"github.com/hanko-field/commerce/internal/repositories"
)

var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized indicates the caller has no verified identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller does not own the referenced entity.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates requested quantities exceed available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity indicates a zero or negative quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrPreconditionFailed indicates the source entity is not in a payable state.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrPromoExhausted indicates the promo reached its redemption limit before commit.
	ErrPromoExhausted = errors.New("promo exhausted")
	// ErrAmountTooSmall indicates the charge is below the gateway minimum.
	ErrAmountTooSmall = errors.New("amount too small")
	// ErrSignatureMismatch indicates the payment callback failed verification.
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrUpstreamFailure indicates the payment gateway was unreachable or rejected the call. Retry-safe.
	ErrUpstreamFailure = errors.New("upstream failure")
	// ErrConflict indicates a concurrent write won a race.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable indicates a backing store is temporarily unavailable.
	ErrUnavailable = errors.New("service unavailable")
)

// translateRepositoryError maps persistence and gateway errors onto the service sentinels. Errors already
// carrying a sentinel and unknown errors are returned wrapped with op.
func translateRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isServiceError(err) {
		return err
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %s: invalid page token", ErrValidation, op)
	}

	if code, ok := repositories.MaterializeErrorCodeOf(err); ok {
		switch code {
		case repositories.MaterializeErrorPaymentNotFound:
			return fmt.Errorf("%w: %s: payment record missing", ErrNotFound, op)
		case repositories.MaterializeErrorPaymentFailed:
			return fmt.Errorf("%w: %s: payment already failed", ErrPreconditionFailed, op)
		case repositories.MaterializeErrorSourceChanged:
			return fmt.Errorf("%w: %s: source is no longer payable", ErrPreconditionFailed, op)
		case repositories.MaterializeErrorPromoExhausted:
			return fmt.Errorf("%w: %s", ErrPromoExhausted, op)
		}
	}

	if code, ok := repositories.InventoryErrorCodeOf(err); ok {
		switch code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %s: %v", ErrInsufficientStock, op, err)
		case repositories.InventoryErrorStockNotFound:
			return fmt.Errorf("%w: %s: %v", ErrNotFound, op, err)
		case repositories.InventoryErrorInvalidQuantity:
			return fmt.Errorf("%w: %s: %v", ErrInvalidQuantity, op, err)
		}
	}

	var counterErr *repositories.CounterError
	if errors.As(err, &counterErr) {
		switch counterErr.Code {
		case repositories.CounterErrorInvalidInput:
			return fmt.Errorf("%w: %s: %s", ErrValidation, op, counterErr.Message)
		case repositories.CounterErrorExhausted:
			return fmt.Errorf("%w: %s: %s", ErrUnavailable, op, counterErr.Message)
		}
	}

	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		return fmt.Errorf("%w: %s", ErrSignatureMismatch, op)
	case errors.Is(err, payments.ErrUpstream):
		return fmt.Errorf("%w: %s: %v", ErrUpstreamFailure, op, err)
	case errors.Is(err, payments.ErrPaymentIncomplete):
		return fmt.Errorf("%w: %s: %v", ErrPreconditionFailed, op, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrNotFound, op)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s: %v", ErrConflict, op, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isServiceError(err error) bool {
	for _, sentinel := range []error{
		ErrValidation, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrInsufficientStock, ErrInvalidQuantity,
		ErrPreconditionFailed, ErrPromoExhausted, ErrAmountTooSmall, ErrSignatureMismatch, ErrUpstreamFailure,
		ErrConflict, ErrUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// isHardStop reports failures after which the payment attempt can never succeed.
func isHardStop(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrPromoExhausted) ||
		errors.Is(err, ErrPreconditionFailed)
}
