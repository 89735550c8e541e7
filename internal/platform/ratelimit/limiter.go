package ratelimit

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision reports whether a request may proceed and, when throttled, how long to wait.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter throttles requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// MemoryLimiter is a per-process token bucket limiter keyed by caller.
type MemoryLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	clock func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows perMinute requests per key with the given burst.
func NewMemoryLimiter(perMinute, burst int, clock func() time.Time) *MemoryLimiter {
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLimiter{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		idle:    10 * time.Minute,
		clock:   clock,
		buckets: make(map[string]*bucket),
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		l.pruneLocked(now)
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return Decision{Allowed: false, RetryAfter: time.Minute}, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true}, nil
}

func (l *MemoryLimiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, key)
		}
	}
}

// RetryAfterSeconds rounds a delay up to whole seconds, with a floor of one.
func RetryAfterSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
