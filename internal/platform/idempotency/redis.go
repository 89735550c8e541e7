package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "idem:"

// RedisStore shares reservations across instances. Records expire through Redis TTLs.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	return &RedisStore{client: client}, nil
}

// Reserve implements the Store interface using SETNX.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	record := Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	redisKey := redisKeyPrefix + hashKey(key)
	created, err := s.client.SetNX(ctx, redisKey, data, ttl).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}
	if created {
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}

	existing, err := s.load(ctx, redisKey)
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; the other holder is gone.
		return Reservation{State: ReservationStatePending, Record: record}, nil
	}
	if err != nil {
		return Reservation{}, err
	}
	return reservationFor(existing, fingerprint)
}

// SaveResponse implements the Store interface.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	redisKey := redisKeyPrefix + hashKey(key)

	var createdAt time.Time
	existing, err := s.load(ctx, redisKey)
	switch {
	case err == nil:
		if existing.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		createdAt = existing.CreatedAt
	case !errors.Is(err, redis.Nil):
		return err
	}

	data, err := json.Marshal(completedRecord(key, fingerprint, resp, createdAt, now.UTC(), ttl))
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	if err := s.client.Set(ctx, redisKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	return nil
}

// Release deletes a pending reservation owned by fingerprint.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	redisKey := redisKeyPrefix + hashKey(key)
	existing, err := s.load(ctx, redisKey)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.Fingerprint != fingerprint || existing.Status != StatusPending {
		return nil
	}
	if err := s.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, redisKey string) (Record, error) {
	data, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("idempotency: load: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, nil
}
