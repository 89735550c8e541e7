package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/hanko-field/commerce/internal/platform/firestore"
	"github.com/hanko-field/commerce/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	Value     int64     `firestore:"value"`
	MaxValue  *int64    `firestore:"maxValue,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out order number sequences from counters/{id} documents.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	now      func() time.Time
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil),
		now:      time.Now,
	}, nil
}

// Next increments counterID by step inside a transaction and returns the new value. Missing counters
// start at zero.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step <= 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}

	var next int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		var doc counterDocument
		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.OK:
			if doc, err = r.counters.Decode(snapshot); err != nil {
				return fmt.Errorf("decode counter %s: %w", id, err)
			}
		case codes.NotFound:
		default:
			return err
		}

		value := doc.Value + step
		if doc.MaxValue != nil && value > *doc.MaxValue {
			return repositories.NewCounterError(repositories.CounterErrorExhausted, fmt.Sprintf("counter %s exceeded max value %d", id, *doc.MaxValue), nil)
		}
		doc.Value = value
		doc.UpdatedAt = r.now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		next = value
		return nil
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return next, nil
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)
