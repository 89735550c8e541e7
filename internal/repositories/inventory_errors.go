package repositories

import (
	"errors"
	"fmt"
)

// InventoryErrorCode enumerates repository error causes for stock operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates the requested quantity exceeds what is on hand.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorStockNotFound indicates the product or raw material does not exist.
	InventoryErrorStockNotFound InventoryErrorCode = "inventory_stock_not_found"
	// InventoryErrorInvalidQuantity indicates a zero or negative quantity.
	InventoryErrorInvalidQuantity InventoryErrorCode = "inventory_invalid_quantity"
)

// InventoryError wraps inventory-specific failures with machine readable codes.
type InventoryError struct {
	Op      string
	Code    InventoryErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// InventoryErrorCodeOf extracts the inventory code from err, if present.
func InventoryErrorCodeOf(err error) (InventoryErrorCode, bool) {
	var invErr *InventoryError
	if errors.As(err, &invErr) && invErr != nil {
		return invErr.Code, true
	}
	return "", false
}
