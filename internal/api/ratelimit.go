package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"holidaysync/internal/redisclient"
	"holidaysync/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// visitorIdleTTL is how long an unused bucket is kept. A bucket refills
// completely within a minute, so evicting it later loses no state.
const visitorIdleTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps a token bucket per key in process memory
type LocalLimiter struct {
	visitors  map[string]*visitor
	mu        sync.Mutex
	perMin    int
	lastSweep time.Time
	now       func() time.Time
}

// NewLocalLimiter allows perMinute requests per key with an equal burst
func NewLocalLimiter(perMinute int) *LocalLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &LocalLimiter{visitors: make(map[string]*visitor), perMin: perMinute, now: time.Now}
}

func (l *LocalLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= time.Minute {
		l.sweep(now)
	}

	v, exists := l.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// sweep drops buckets idle for longer than visitorIdleTTL. Callers hold mu.
func (l *LocalLimiter) sweep(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(l.visitors, key)
		}
	}
	l.lastSweep = now
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	r := l.get(key).Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}

// RedisLimiter shares a fixed window counter across instances. When Redis is
// unreachable it degrades to a local limiter.
type RedisLimiter struct {
	client   *redisclient.Client
	perMin   int
	fallback *LocalLimiter
}

// NewRedisLimiter creates a Redis backed limiter
func NewRedisLimiter(client *redisclient.Client, perMinute int) *RedisLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &RedisLimiter{client: client, perMin: perMinute, fallback: NewLocalLimiter(perMinute)}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := l.client.RateLimit(ctx, key, l.perMin, time.Minute)
	if err != nil {
		util.GetLogger().Warn("Redis rate limit unavailable, using local limiter", zap.Error(err))
		return l.fallback.Allow(ctx, key)
	}
	return res.Allowed, res.RetryAfter, nil
}

// rateLimit rejects requests over the limit for the named bucket per client IP
func rateLimit(limiter Limiter, bucket string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		ip := c.ClientIP()
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), bucket+":"+ip)
		if err != nil {
			// Fail open; the limiter protects capacity, not correctness.
			util.GetLogger().Error("Rate limiter error", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			util.GetLogger().Warn("Rate limit exceeded", zap.String("ip", ip), zap.String("bucket", bucket))
			if retryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second)/time.Second)+1))
			}
			abortWithError(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded, try again later")
			return
		}
		c.Next()
	}
}
