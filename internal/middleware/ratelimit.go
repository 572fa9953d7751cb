package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter is a fixed-window request counter kept in Redis so every API
// instance shares the same budget.
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	window time.Duration
	log    *zap.Logger
}

func NewRateLimiter(redisClient *redis.Client, prefix string, limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		prefix: prefix,
		limit:  limit,
		window: window,
		log:    log,
	}
}

// key buckets authenticated requests by user and anonymous ones by IP.
func (rl *RateLimiter) key(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != uuid.Nil {
		return fmt.Sprintf("ratelimit:%s:user:%s", rl.prefix, userID)
	}
	return fmt.Sprintf("ratelimit:%s:ip:%s", rl.prefix, r.RemoteAddr)
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := rl.key(r)

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// Fail open: Redis trouble must not take the API down.
			rl.log.Warn("rate limiter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			rl.redis.Expire(ctx, key, rl.window)
		}

		if count > int64(rl.limit) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}
