package ginserver

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	gin "github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ClientLimiter keeps one token bucket per client IP.
type ClientLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*client
	swept   time.Time
}

type client struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewClientLimiter allows perSecond requests per client with the given burst.
// A non-positive rate disables limiting.
func NewClientLimiter(perSecond float64, burst int) *ClientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ClientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

func (l *ClientLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	cl, ok := l.clients[key]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.seen = now
	return cl.limiter.AllowN(now, 1)
}

// sweep drops buckets of clients idle for longer than l.idle.
func (l *ClientLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.idle {
		return
	}
	l.swept = now
	for key, cl := range l.clients {
		if now.Sub(cl.seen) > l.idle {
			delete(l.clients, key)
		}
	}
}

func (l *ClientLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
