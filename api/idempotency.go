package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper stores applied gesture idempotency keys in Redis so a retried
// POST cannot double-apply a move or resize.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(boardID, key string) string {
	return fmt.Sprintf("timeline:gesture:%s:%s", boardID, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, boardID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(boardID, key), 1, r.ttl).Result()
}

// Remove deletes a previously recorded key. It is used when a gesture is
// rejected so a corrected retry under the same key is not suppressed.
func (r *RedisDeduper) Remove(ctx context.Context, boardID, key string) error {
	return r.client.Del(ctx, r.key(boardID, key)).Err()
}
