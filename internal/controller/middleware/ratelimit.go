package middleware

import (
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per user. Buckets expire ttl after
// they were created and a janitor evicts them, so idle users are dropped.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	limiters *ttlcache.Cache[string, *rate.Limiter]
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithTTL sets how long a user's bucket is kept.
func WithTTL(ttl time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) { rl.ttl = ttl }
}

// WithLimit sets requests per second and burst. A zero limit disables limiting.
func WithLimit(perSecond float64, burst int) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.limit = rate.Limit(perSecond)
		rl.burst = burst
	}
}

// NewRateLimiter creates a limiter allowing 5 req/s with a burst of 10 by
// default. Close stops its janitor.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limit: 5,
		burst: 10,
		ttl:   5 * time.Minute,
	}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.burst < 1 {
		rl.burst = 1
	}
	rl.limiters = ttlcache.New(
		ttlcache.WithTTL[string, *rate.Limiter](rl.ttl),
		ttlcache.WithDisableTouchOnHit[string, *rate.Limiter](),
	)
	go rl.limiters.Start()
	return rl
}

// Close stops the bucket janitor.
func (rl *RateLimiter) Close() {
	rl.limiters.Stop()
}

func (rl *RateLimiter) get(userID string) *rate.Limiter {
	if item := rl.limiters.Get(userID); item != nil {
		return item.Value()
	}
	item, _ := rl.limiters.GetOrSet(userID, rate.NewLimiter(rl.limit, rl.burst))
	return item.Value()
}

// Middleware must run after authentication.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if rl.limit > 0 && !rl.get(user.ID()).Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
