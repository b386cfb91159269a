package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CounterRepository 是限流计数器的存储抽象。
// 自增与过期设置必须是一个原子操作，不允许两次独立调用的读改写，
// 否则同一租户的并发请求会产生丢失更新。
type CounterRepository interface {
	// IncrWithTTL 原子自增 key 并在首次创建时设置过期时间，返回自增后的值。
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// incrWithTTLScript 在 Redis 侧一次完成 INCR 与首次 EXPIRE。
// 计数器依赖 TTL 自动过期，应用侧从不主动删除。
var incrWithTTLScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

type redisCounterRepository struct {
	rdb *redis.Client
}

// NewCounterRepository 创建一个新的 CounterRepository 实例。
func NewCounterRepository(rdb *redis.Client) CounterRepository {
	return &redisCounterRepository{rdb: rdb}
}

// IncrWithTTL 执行原子的 increment-with-expiry。
func (r *redisCounterRepository) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrWithTTLScript.Run(ctx, r.rdb, []string{key}, int(ttl.Seconds())).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return count, nil
}
