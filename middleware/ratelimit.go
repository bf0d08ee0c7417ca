package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const clientIdleTTL = 10 * time.Minute

type client struct {
	bucket *rate.Limiter
	seen   time.Time
}

// RateLimit applies a per-client-IP token bucket of r requests per
// second with burst b. Buckets for idle clients are dropped after
// clientIdleTTL so the map stays bounded.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
		nextGC  = time.Now().Add(clientIdleTTL)
	)

	take := func(ip string) bool {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if now.After(nextGC) {
			for ip, cl := range clients {
				if now.Sub(cl.seen) > clientIdleTTL {
					delete(clients, ip)
				}
			}
			nextGC = now.Add(clientIdleTTL)
		}

		cl, ok := clients[ip]
		if !ok {
			cl = &client{bucket: rate.NewLimiter(r, b)}
			clients[ip] = cl
		}
		cl.seen = now
		return cl.bucket.Allow()
	}

	return func(c *gin.Context) {
		if !take(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
