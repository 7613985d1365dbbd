// README: Per-client token bucket rate limiting.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Sagnify/ambulance-booking/internal/logger"
)

// defaultLimiterIdle is the minimum time a bucket stays in memory after its last request.
const defaultLimiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	idle      time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func newRateLimiterStore(rps rate.Limit, burst int) *rateLimiterStore {
	// An entry idle for a full refill behaves like a fresh limiter, so it is safe to drop.
	idle := defaultLimiterIdle
	if refill := time.Duration(float64(burst) / float64(rps) * float64(time.Second)); refill > idle {
		idle = refill
	}
	return &rateLimiterStore{
		limiters:  map[string]*limiterEntry{},
		rps:       rps,
		burst:     burst,
		idle:      idle,
		lastPrune: time.Now(),
		now:       time.Now,
	}
}

func (s *rateLimiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastPrune) >= s.idle {
		s.prune(now)
	}
	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// prune drops buckets not used within the idle window. Caller holds mu.
func (s *rateLimiterStore) prune(now time.Time) {
	for k, e := range s.limiters {
		if now.Sub(e.lastSeen) >= s.idle {
			delete(s.limiters, k)
		}
	}
	s.lastPrune = now
}

// RateLimit keys buckets by caller uid when authenticated, else by client IP.
// A non-positive rps disables limiting.
func RateLimit(rps float64, burst int, log logger.Logger) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	store := newRateLimiterStore(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		key := CallerUID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !store.get(key).Allow() {
			log.Warn("rate limit exceeded", "key", key, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
