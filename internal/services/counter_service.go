package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hanko-field/commerce/internal/repositories"
)

const defaultOrderNumberPrefix = "HF"

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
	// OrderPrefix leads every order number, e.g. HF-2025-000042.
	OrderPrefix string
}

type counterService struct {
	repo        repositories.CounterRepository
	clock       func() time.Time
	orderPrefix string
}

// NewCounterService constructs a service that formats sequences allocated by the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	prefix := strings.ToUpper(strings.TrimSpace(deps.OrderPrefix))
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}

	return &counterService{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
		orderPrefix: prefix,
	}, nil
}

// NextOrderNumber allocates from a per-year counter. Sequences burned by aborted transactions leave gaps.
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	year := s.clock().Year()
	seq, err := s.repo.Next(ctx, fmt.Sprintf("orders:%04d", year), 1)
	if err != nil {
		return "", translateRepositoryError("counter.next", err)
	}
	return fmt.Sprintf("%s-%04d-%06d", s.orderPrefix, year, seq), nil
}
