package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/commerce/internal/repositories"
)

func TestWrapErrorClassifiesSQLState(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "no rows", err: sql.ErrNoRows, notFound: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, conflict: true},
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, conflict: true},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, conflict: true},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, unavailable: true},
		{name: "too many connections", err: &pq.Error{Code: "53300"}, unavailable: true},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, unavailable: true},
		{name: "check violation", err: &pq.Error{Code: "23514"}},
		{name: "closed pool", err: sql.ErrConnDone, unavailable: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("op", fmt.Errorf("exec: %w", tc.err))
			var repoErr repositories.RepositoryError
			require.True(t, errors.As(err, &repoErr), "expected repository error, got %T", err)
			assert.Equal(t, tc.notFound, repoErr.IsNotFound())
			assert.Equal(t, tc.conflict, repoErr.IsConflict())
			assert.Equal(t, tc.unavailable, repoErr.IsUnavailable())
		})
	}
}

func TestWrapErrorPassesThroughDomainErrors(t *testing.T) {
	require.NoError(t, WrapError("op", nil))
	assert.ErrorIs(t, WrapError("op", context.Canceled), context.Canceled)

	inv := repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, "short", nil)
	wrapped := WrapError("orders.materialize", inv)
	code, ok := repositories.InventoryErrorCodeOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, repositories.InventoryErrorInsufficientStock, code)
	assert.Equal(t, "orders.materialize", inv.Op)

	mat := repositories.NewMaterializeError(repositories.MaterializeErrorPromoExhausted, "promo", nil)
	assert.Same(t, mat, WrapError("orders.materialize", mat))

	first := WrapError("inner", sql.ErrNoRows)
	assert.Same(t, first, WrapError("outer", first))
}

func TestClipReasonKeepsRuneBoundaries(t *testing.T) {
	assert.Equal(t, "declined", clipReason("  declined "))

	long := strings.Repeat("a", failureReasonLimit-1) + "署名"
	clipped := clipReason(long)
	assert.LessOrEqual(t, len(clipped), failureReasonLimit)
	assert.Equal(t, strings.Repeat("a", failureReasonLimit-1), clipped)
}
