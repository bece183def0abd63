package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter caps completion calls per user over a fixed one-minute window.
// Counting lives in redis so the cap holds across server replicas.
type Limiter struct {
	rdb   *redis.Client
	limit int
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewLimiter(rdb *redis.Client, limit int) *Limiter {
	return &Limiter{rdb: rdb, limit: limit}
}

// Allow increments the user's counter for the current window and reports
// whether the call is within the cap. The first increment of a window sets
// the expiry; the key dies with the window.
func (l *Limiter) Allow(ctx context.Context, userID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	window := time.Now().Unix() / 60
	key := fmt.Sprintf("ratelimit:completion:%s:%d", userID, window)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redisstore: rate limit check: %w", err)
	}
	return incr.Val() <= int64(l.limit), nil
}
