package mw

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RL hands out one token bucket per key. Idle buckets expire after ttl.
type RL struct {
	mu    sync.Mutex
	cache *cache.Cache
	r     rate.Limit
	b     int
	ttl   time.Duration
}

func NewRateLimiter(r rate.Limit, burst int, ttl time.Duration) *RL {
	return &RL{cache: cache.New(ttl, 30*time.Second), r: r, b: burst, ttl: ttl}
}

func (rl *RL) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if v, ok := rl.cache.Get(key); ok {
		lim := v.(*rate.Limiter)
		rl.cache.Set(key, lim, rl.ttl)
		return lim
	}
	lim := rate.NewLimiter(rl.r, rl.b)
	rl.cache.Set(key, lim, rl.ttl)
	return lim
}

// Allow takes one token from the bucket of key.
func (rl *RL) Allow(key string) bool { return rl.get(key).Allow() }

// Len is the number of live buckets.
func (rl *RL) Len() int { return rl.cache.ItemCount() }

// RateLimit limits requests per client IP and route.
func RateLimit(r rate.Limit, burst int) gin.HandlerFunc {
	rl := NewRateLimiter(r, burst, 2*time.Minute)
	return func(c *gin.Context) {
		ip := clientIP(c.Request.RemoteAddr)
		key := ip + "|" + c.FullPath()
		if c.FullPath() == "" {
			key = ip + "|" + c.Request.URL.Path
		}
		if !rl.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
