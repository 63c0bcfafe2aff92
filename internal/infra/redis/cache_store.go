package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joeott/legal-doc-processor-sub003/internal/infra/cache"
)

// CacheStore implements cache.Store on Redis strings with native TTL.
type CacheStore struct {
	rdb *redis.Client
}

// NewCacheStore creates a Redis-backed cache store.
func NewCacheStore(client *Client) *CacheStore {
	return &CacheStore{rdb: client.rdb}
}

func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	return data, nil
}

func (s *CacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

func (s *CacheStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *CacheStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
