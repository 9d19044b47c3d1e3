package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// LimiterRegistry hands out one token bucket per operator key. Anonymous
// traffic shares a single bucket keyed by client IP.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewLimiterRegistry(rps float64, burst int) *LimiterRegistry {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = int(rps) * 2
	}
	return &LimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (r *LimiterRegistry) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(r.rps, r.burst)
	r.limiters[key] = l
	return l
}

func RateLimitMiddleware(registry *LimiterRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		key := p.ID
		if key == anonymousPrincipalID {
			key = "ip:" + c.ClientIP()
		}

		if !registry.get(key).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
