package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiters holds one token bucket per client IP.
type clientLimiters struct {
	limiters sync.Map
	limit    rate.Limit
	burst    int
}

func newClientLimiters(perMinute int) *clientLimiters {
	return &clientLimiters{
		limit: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: perMinute,
	}
}

func (l *clientLimiters) get(ip string) *rate.Limiter {
	if val, ok := l.limiters.Load(ip); ok {
		return val.(*rate.Limiter)
	}
	val, _ := l.limiters.LoadOrStore(ip, rate.NewLimiter(l.limit, l.burst))
	return val.(*rate.Limiter)
}

func (l *clientLimiters) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests. Please try again later.",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}

// acquire takes an operation slot, giving up when ctx ends.
func (s *Server) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) release() {
	<-s.slots
}
