package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lofitape/api/pkg/response"
)

// RateLimiter throttles per-user request rates. Counters live in Redis
// when it is configured so limits hold across replicas; otherwise an
// in-process fallback keeps single-node deployments honest.
type RateLimiter struct {
	redis *redis.Client

	mu      sync.Mutex
	local   map[string]*localWindow
	nowFunc func() time.Time
}

type localWindow struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:   redisClient,
		local:   make(map[string]*localWindow),
		nowFunc: time.Now,
	}
}

// Limit creates a rate limiting middleware. Unauthenticated requests are
// keyed by client IP.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := GetUserID(c)
		if caller == "" {
			caller = c.IP()
		}
		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, caller)

		count, ttl, ok := rl.bump(key, window)
		if !ok {
			return c.Next()
		}

		if count > int64(maxRequests) {
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))
		return c.Next()
	}
}

// bump increments the counter for key and returns the new count and time
// until the window resets. ok is false when counting was impossible and
// the request should pass.
func (rl *RateLimiter) bump(key string, window time.Duration) (int64, time.Duration, bool) {
	if rl.redis == nil {
		return rl.bumpLocal(key, window)
	}

	ctx := context.Background()
	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		// Redis being down must not take requests with it.
		return 0, 0, false
	}
	if count == 1 {
		rl.redis.Expire(ctx, key, window)
	}
	ttl, _ := rl.redis.TTL(ctx, key).Result()
	return count, ttl, true
}

func (rl *RateLimiter) bumpLocal(key string, window time.Duration) (int64, time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	w := rl.local[key]
	if w == nil || now.After(w.resetAt) {
		w = &localWindow{resetAt: now.Add(window)}
		rl.local[key] = w
	}
	w.count++
	return int64(w.count), w.resetAt.Sub(now), true
}

// JobsLimit throttles job submission.
func (rl *RateLimiter) JobsLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("jobs", maxPerHour, time.Hour)
}

// UploadLimit throttles direct uploads, which are far heavier than URL
// submissions.
func (rl *RateLimiter) UploadLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("upload", maxPerHour, time.Hour)
}
