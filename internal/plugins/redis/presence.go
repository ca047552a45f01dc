package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKey = "presence:online"
	// Entries older than this are considered stale and trimmed on read.
	presenceWindow = 24 * time.Hour
)

// RedisPresenceStore mirrors the in-process session registry into a
// ZSET so presence survives inspection from outside the process. It is
// advisory only; the registry remains the source of truth for routing.
type RedisPresenceStore struct {
	rdb *redis.Client
}

func NewRedisPresenceStore(rdb *redis.Client) *RedisPresenceStore {
	return &RedisPresenceStore{rdb: rdb}
}

func (p *RedisPresenceStore) SetOnline(ctx context.Context, userID string) error {
	return p.rdb.ZAdd(ctx, presenceKey, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: userID,
	}).Err()
}

func (p *RedisPresenceStore) SetOffline(ctx context.Context, userID string) error {
	return p.rdb.ZRem(ctx, presenceKey, userID).Err()
}

func (p *RedisPresenceStore) Online(ctx context.Context) ([]string, error) {
	// Self-cleaning: drop members that never got an explicit offline.
	threshold := time.Now().Add(-presenceWindow).Unix()
	p.rdb.ZRemRangeByScore(ctx, presenceKey, "-inf", strconv.FormatInt(threshold, 10))

	return p.rdb.ZRange(ctx, presenceKey, 0, -1).Result()
}
