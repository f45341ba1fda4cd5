package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/metrics"
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a middleware that enforces a per-IP token bucket:
// perMinute requests per minute refilled continuously, with bursts up to burst.
// Idle buckets are dropped by a janitor goroutine that exits when ctx ends.
func RateLimiter(ctx context.Context, perMinute, burst int) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	every := rate.Every(time.Minute / time.Duration(perMinute))

	var mu sync.Mutex
	clients := make(map[string]*clientBucket)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				mu.Lock()
				for ip, b := range clients {
					if now.Sub(b.lastSeen) > 10*time.Minute {
						delete(clients, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		b, ok := clients[ip]
		if !ok {
			b = &clientBucket{limiter: rate.NewLimiter(every, burst)}
			clients[ip] = b
		}
		b.lastSeen = time.Now()
		mu.Unlock()

		if !b.limiter.Allow() {
			metrics.RateLimitRejections.WithLabelValues("ip").Inc()
			c.Header("Retry-After", strconv.Itoa(int(time.Minute/time.Duration(perMinute)/time.Second)+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.ErrorResponse{
				Code:    domain.KindUserRateLimited,
				Message: "rate limit exceeded, maximum " + strconv.Itoa(perMinute) + " requests per minute",
			})
			return
		}
		c.Next()
	}
}
