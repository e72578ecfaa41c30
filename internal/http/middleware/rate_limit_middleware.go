package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/response"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/observability"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = time.Hour

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per client key. Idle buckets are swept
// lazily on access.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	scope    string
	keyFunc  func(r *http.Request) string
	now      func() time.Time
	cleanup  time.Time
}

func NewRateLimiter(rps float64, burst int, scope string) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		scope:    scope,
		keyFunc:  clientIPKey,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.keyFunc(r)
			now := rl.now()
			lim := rl.limiterFor(key, now)

			res := lim.ReserveN(now, 1)
			delay := res.DelayFrom(now)
			if delay > 0 {
				res.CancelAt(now)
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "deny")
				retry := retryAfterSeconds(delay)
				observability.RecordRateLimitRetryAfter(r.Context(), rl.scope, retry)
				slog.Debug("rate limit exceeded", "scope", rl.scope, "client", key, "retry_after", retry)
				writeRateLimitHeaders(w.Header(), rl.burst, 0)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			observability.RecordRateLimitDecision(r.Context(), rl.scope, "allow")
			writeRateLimitHeaders(w.Header(), rl.burst, int(math.Floor(lim.TokensAt(now))))
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.cleanup) {
		for k, e := range rl.limiters {
			if now.Sub(e.lastAccess) > limiterIdleTTL {
				delete(rl.limiters, k)
			}
		}
		rl.cleanup = now.Add(5 * time.Minute)
	}

	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastAccess = now
	return e.limiter
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}

func retryAfterSeconds(d time.Duration) int64 {
	seconds := int64(math.Ceil(d.Seconds()))
	if seconds <= 0 {
		seconds = 1
	}
	return seconds
}

func writeRateLimitHeaders(h http.Header, limit, remaining int) {
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", max(limit, 0)))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", max(remaining, 0)))
}
