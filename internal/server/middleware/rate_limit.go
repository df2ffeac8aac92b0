package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yonathanth/Workline-backend/internal/server/httperr"
)

// KeyFunc extracts the rate limiting key from a request.
type KeyFunc func(*http.Request) string

// Skipper reports whether a request bypasses rate limiting.
type Skipper func(*http.Request) bool

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	extractKey KeyFunc
	skipper    Skipper
	limit      rate.Limit
	burst      int
	logger     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithSkipper sets a skipper for the rate limiter.
func WithSkipper(skipper Skipper) RateLimiterOption {
	return func(rl *RateLimiter) { rl.skipper = skipper }
}

// NewRateLimiter returns a limiter allowing limit events per second with the given burst per key.
// A nil keyFunc keys by ClientIP.
func NewRateLimiter(logger *slog.Logger, keyFunc KeyFunc, limit rate.Limit, burst int, opts ...RateLimiterOption) *RateLimiter {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	rl := &RateLimiter{
		extractKey: keyFunc,
		skipper:    func(*http.Request) bool { return false },
		limit:      limit,
		burst:      burst,
		logger:     logger,
		limiters:   make(map[string]*limiterEntry),
	}
	for _, o := range opts {
		o(rl)
	}
	return rl
}

func (rl *RateLimiter) get(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Prune drops buckets idle for longer than idle.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for key, e := range rl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			n++
		}
	}
	return n
}

// Limit is the rate limiting middleware.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}
		key := rl.extractKey(r)
		if !rl.get(key, time.Now()).Allow() {
			rl.logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("key", key),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			httperr.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": map[string]string{"code": "rate_limited", "message": "rate limit exceeded"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
