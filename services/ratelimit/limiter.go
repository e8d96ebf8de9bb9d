// Package ratelimit throttles sensitive endpoints (login, password reset) per client key.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/quizzq/backend/core"
)

var nowFunc = time.Now // mockable

// Limiter allows at most a fixed number of hits per key within a sliding window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New returns a Redis backed limiter when Redis is configured, an in-process one otherwise.
func New(conf *core.Config, logger core.Logger) Limiter {
	limit := conf.RateLimit.AuthPerMinute
	if conf.Redis.Address == "" {
		logger.Warn("redis address not set, rate limiting is per process")
		return NewMemoryLimiter(limit, time.Minute)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	return NewRedisLimiter(client, limit, time.Minute)
}

type redisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

var _ Limiter = (*redisLimiter)(nil) // interface compliance check

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *redisLimiter {
	return &redisLimiter{client: client, limit: limit, window: window}
}

func (l *redisLimiter) key(key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", key, l.window)
}

// Allow records the hit in a sorted set scored by time, after dropping the hits older than the window.
func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	redisKey := l.key(key)
	now := nowFunc()
	windowStart := now.Add(-l.window).UnixNano()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	zcard := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.New().String()})
	pipe.Expire(ctx, redisKey, l.window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "executing rate limit pipeline")
	}
	return zcard.Val() < int64(l.limit), nil
}

type memoryLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
	limit     int
	window    time.Duration
}

var _ Limiter = (*memoryLimiter)(nil) // interface compliance check

func NewMemoryLimiter(limit int, window time.Duration) *memoryLimiter {
	return &memoryLimiter{hits: make(map[string][]time.Time), limit: limit, window: window}
}

func (l *memoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := nowFunc()
	windowStart := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(windowStart)
		l.lastSweep = now
	}

	hits := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(windowStart) {
			hits = append(hits, t)
		}
	}
	allowed := len(hits) < l.limit
	l.hits[key] = append(hits, now)
	return allowed, nil
}

// sweep forgets the keys without a hit in the current window, at most once per window.
func (l *memoryLimiter) sweep(windowStart time.Time) {
	for key, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(windowStart) {
			delete(l.hits, key)
		}
	}
}
