package ratelimit

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hanko-field/commerce/internal/platform/auth"
	"github.com/hanko-field/commerce/internal/platform/httpx"
	"github.com/hanko-field/commerce/internal/platform/requestctx"
)

// KeyFunc derives the throttling key for a request.
type KeyFunc func(r *http.Request) string

// ByPrincipal keys requests by authenticated uid, falling back to the remote address.
func ByPrincipal(scope string) KeyFunc {
	return func(r *http.Request) string {
		if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UID != "" {
			return scope + ":uid:" + identity.UID
		}
		return scope + ":ip:" + r.RemoteAddr
	}
}

// Middleware rejects throttled requests with 429 and a Retry-After header.
// Limiter errors fail open so an unavailable Redis never blocks checkout.
func Middleware(limiter Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || key == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			decision, err := limiter.Allow(ctx, key(r))
			if err != nil {
				requestctx.Logger(ctx).Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests).
					WithRetryAfter(RetryAfterSeconds(decision.RetryAfter)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
