package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"
)

// clientLimiters hands out one token bucket per client address. Buckets
// idle for longer than ttl are dropped on the next sweep.
type clientLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	clients  map[string]*clientBucket
	lastScan time.Time
	now      func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(perSecond float64, burst int) *clientLimiters {
	if burst <= 0 {
		burst = max(1, int(perSecond))
	}
	return &clientLimiters{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     3 * time.Minute,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (l *clientLimiters) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastScan) > l.ttl {
		for k, b := range l.clients {
			if now.Sub(b.lastSeen) > l.ttl {
				delete(l.clients, k)
			}
		}
		l.lastScan = now
	}
	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// RateLimit rejects requests with 429 once a client exceeds perSecond
// sustained requests plus burst. A non-positive perSecond disables it.
func RateLimit(perSecond float64, burst int) echo.MiddlewareFunc {
	if perSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	limiters := newClientLimiters(perSecond, burst)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if !limiters.allow(c.RealIP()) {
				c.Response().Header().Set("Retry-After", "1")
				return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded", "")
			}
			return next(c)
		}
	}
}
