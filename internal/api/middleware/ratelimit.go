package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 30 * time.Minute
	limiterSweepInterval = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware keeps one token bucket per client.
type RateLimiterMiddleware struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiterMiddleware(refillPerSecond, bucketSize int) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		clients:   make(map[string]*clientLimiter),
		rps:       rate.Limit(refillPerSecond),
		burst:     bucketSize,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// clientKey prefers the authenticated user over the remote address.
func clientKey(c *gin.Context) string {
	if v, ok := c.Get(ContextKeyUserID); ok {
		if id, ok := v.(primitive.ObjectID); ok {
			return "user:" + id.Hex()
		}
	}
	return "ip:" + c.ClientIP()
}

func (rm *RateLimiterMiddleware) limiterFor(key string) *rate.Limiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := rm.now()
	if now.Sub(rm.lastSweep) > limiterSweepInterval {
		for id, cl := range rm.clients {
			if now.Sub(cl.lastSeen) > limiterIdleTTL {
				delete(rm.clients, id)
			}
		}
		rm.lastSweep = now
	}

	cl, ok := rm.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rm.rps, rm.burst)}
		rm.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)
		if !rm.limiterFor(key).Allow() {
			zap.L().Warn("Rate limit exceeded", zap.String("client", key), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
