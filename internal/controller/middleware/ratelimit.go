package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterTTL = 5 * time.Minute

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

// limiterCache holds one limiter per presented key. Expired entries are
// swept on lookup at most once per TTL, so unauthenticated garbage keys
// cannot grow the map without bound.
type limiterCache struct {
	mu        sync.Mutex
	entries   map[string]*cachedLimiter
	ttl       time.Duration
	nextSweep time.Time
}

func (c *limiterCache) get(key string, perMin, burst int) *rate.Limiter {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.After(c.nextSweep) {
		for k, v := range c.entries {
			if now.After(v.expiresAt) {
				delete(c.entries, k)
			}
		}
		c.nextSweep = now.Add(c.ttl)
	}

	if cached, ok := c.entries[key]; ok && now.Before(cached.expiresAt) {
		cached.expiresAt = now.Add(c.ttl)
		return cached.limiter
	}
	limiter := rate.NewLimiter(rate.Limit(float64(perMin)/60.0), burst)
	c.entries[key] = &cachedLimiter{limiter: limiter, expiresAt: now.Add(c.ttl)}
	return limiter
}

// RateLimit limits requests per presented API key. perMin of 0 disables
// limiting.
func RateLimit(perMin, burst int) func(http.Handler) http.Handler {
	cache := &limiterCache{
		entries: make(map[string]*cachedLimiter),
		ttl:     limiterTTL,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if perMin <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			limiter := cache.get(r.Header.Get("X-Api-Key"), perMin, burst)
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
