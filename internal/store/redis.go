package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQuota is a domain.QuotaCounter backed by Redis, for deployments that
// share one daily allowance across several processes.
type RedisQuota struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisQuota connects to redisURL (redis://host:port/db).
func NewRedisQuota(ctx context.Context, redisURL string) (*RedisQuota, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisQuota{rdb: rdb, now: time.Now}, nil
}

// NewRedisQuotaFromClient wraps an existing client.
func NewRedisQuotaFromClient(rdb *redis.Client) *RedisQuota {
	return &RedisQuota{rdb: rdb, now: time.Now}
}

func quotaKey(guildID, day string) string {
	return "relaybot:quota:" + guildID + ":" + day
}

// Reserve increments today's counter and refunds the unit when it overshoots limit.
func (q *RedisQuota) Reserve(ctx context.Context, guildID string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	key := quotaKey(guildID, q.now().UTC().Format(dayLayout))

	pipe := q.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}

	if incr.Val() > int64(limit) {
		q.rdb.Decr(ctx, key)
		return false, nil
	}
	return true, nil
}

// releaseScript decrements a counter that exists and is above zero.
var releaseScript = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n > 0 then
	return redis.call("DECR", KEYS[1])
end
return 0
`)

// Release refunds one unit of today's allowance.
func (q *RedisQuota) Release(ctx context.Context, guildID string) error {
	key := quotaKey(guildID, q.now().UTC().Format(dayLayout))
	if err := releaseScript.Run(ctx, q.rdb, []string{key}).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

func (q *RedisQuota) Usage(ctx context.Context, guildID string, day time.Time) (int, error) {
	n, err := q.rdb.Get(ctx, quotaKey(guildID, day.UTC().Format(dayLayout))).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (q *RedisQuota) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *RedisQuota) Close() error {
	return q.rdb.Close()
}
