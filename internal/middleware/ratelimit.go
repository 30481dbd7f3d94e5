package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/dukerupert/emerald/internal/auth"
)

// RealIP extracts the client's real IP address, preferring Cloudflare's
// CF-Connecting-IP header, then X-Forwarded-For, and falling back to RemoteAddr.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AccountOrIP keys rate limits by the authenticated account, falling back
// to the client IP.
func AccountOrIP(r *http.Request) string {
	if id := auth.AccountID(r.Context()); id != "" {
		return "account:" + id
	}
	return "ip:" + RealIP(r)
}

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window in-memory rate limiter. Windows live in a
// sharded map, so unrelated keys never contend.
type RateLimiter struct {
	windows cmap.ConcurrentMap[string, window]
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: cmap.New[window](),
		now:     time.Now,
	}
}

// Allow counts a hit for key and reports whether it is within limit.
func (rl *RateLimiter) Allow(key string, limit int, per time.Duration) bool {
	ok, _ := rl.Reserve(key, limit, per)
	return ok
}

// Reserve counts a hit for key and reports whether it is within limit, along
// with when the current window resets.
func (rl *RateLimiter) Reserve(key string, limit int, per time.Duration) (bool, time.Time) {
	now := rl.now()
	w := rl.windows.Upsert(key, window{}, func(exists bool, cur, _ window) window {
		if !exists || now.After(cur.resetAt) {
			cur = window{resetAt: now.Add(per)}
		}
		cur.count++
		return cur
	})
	return w.count <= limit, w.resetAt
}

// Cleanup removes expired windows and returns how many were dropped.
func (rl *RateLimiter) Cleanup() int {
	now := rl.now()
	removed := 0
	for _, key := range rl.windows.Keys() {
		if rl.windows.RemoveCb(key, func(_ string, w window, exists bool) bool {
			return exists && now.After(w.resetAt)
		}) {
			removed++
		}
	}
	return removed
}

// RateLimit returns middleware that rate-limits requests by keyFunc. Denied
// requests get 429 with Retry-After in seconds.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, per time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, resetAt := limiter.Reserve(keyFunc(r), limit, per)
			if !ok {
				wait := int(math.Ceil(time.Until(resetAt).Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(wait, 1)))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
