package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hanko-field/commerce/internal/repositories"
)

// CounterRepository hands out sequences from the counters table.
type CounterRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewCounterRepository(db *sql.DB) (*CounterRepository, error) {
	if db == nil {
		return nil, errors.New("counter repository requires database")
	}
	return &CounterRepository{db: db, now: time.Now}, nil
}

// Next upserts the counter row and returns its incremented value in a single statement.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step <= 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}

	var value int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO counters (id, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET value = counters.value + EXCLUDED.value, updated_at = EXCLUDED.updated_at
		WHERE counters.max_value IS NULL OR counters.value + EXCLUDED.value <= counters.max_value
		RETURNING value`, id, step, r.now().UTC()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repositories.NewCounterError(repositories.CounterErrorExhausted, fmt.Sprintf("counter %s reached its max value", id), nil)
	}
	if err != nil {
		return 0, WrapError("counters.next", err)
	}
	return value, nil
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)
