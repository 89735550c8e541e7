package repositories

import (
	"errors"
	"fmt"
)

// MaterializeErrorCode enumerates business aborts raised inside the materialization transaction.
type MaterializeErrorCode string

const (
	// MaterializeErrorPaymentNotFound indicates no payment record exists for the gateway order id.
	MaterializeErrorPaymentNotFound MaterializeErrorCode = "materialize_payment_not_found"
	// MaterializeErrorPaymentFailed indicates the payment record was already marked failed.
	MaterializeErrorPaymentFailed MaterializeErrorCode = "materialize_payment_failed"
	// MaterializeErrorSourceChanged indicates the design request left payment_pending before commit.
	MaterializeErrorSourceChanged MaterializeErrorCode = "materialize_source_changed"
	// MaterializeErrorPromoExhausted indicates the promo reached max uses before commit.
	MaterializeErrorPromoExhausted MaterializeErrorCode = "materialize_promo_exhausted"
)

// MaterializeError reports why a materialization transaction was aborted.
type MaterializeError struct {
	Code    MaterializeErrorCode
	Message string
	Err     error
}

func (e *MaterializeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *MaterializeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewMaterializeError constructs a typed materialization error.
func NewMaterializeError(code MaterializeErrorCode, message string, err error) *MaterializeError {
	return &MaterializeError{Code: code, Message: message, Err: err}
}

// MaterializeErrorCodeOf extracts the materialization code from err, if present.
func MaterializeErrorCodeOf(err error) (MaterializeErrorCode, bool) {
	var matErr *MaterializeError
	if errors.As(err, &matErr) && matErr != nil {
		return matErr.Code, true
	}
	return "", false
}
