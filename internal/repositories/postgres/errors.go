package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hanko-field/commerce/internal/repositories"
)

// Error implements repositories.RepositoryError for PostgreSQL backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// WrapError classifies err by SQLSTATE. Context cancellation and the repository business errors are
// returned unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var (
		invErr     *repositories.InventoryError
		matErr     *repositories.MaterializeError
		counterErr *repositories.CounterError
		existing   *Error
	)
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	if errors.As(err, &matErr) || errors.As(err, &counterErr) || errors.As(err, &existing) {
		return err
	}

	e := &Error{op: op, err: err}
	if errors.Is(err, sql.ErrNoRows) {
		e.notFound = true
		return e
	}
	if errors.Is(err, sql.ErrConnDone) {
		e.unavailable = true
		return e
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Name() == "unique_violation",
			pqErr.Code.Name() == "serialization_failure",
			pqErr.Code.Name() == "deadlock_detected":
			e.conflict = true
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53", pqErr.Code.Class() == "57":
			e.unavailable = true
		}
	}
	return e
}

func notFound(op, what string) error {
	return &Error{op: op, err: fmt.Errorf("%s: %w", what, sql.ErrNoRows), notFound: true}
}

var _ repositories.RepositoryError = (*Error)(nil)
