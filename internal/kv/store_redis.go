package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"roadlog/pkg/platform/sentinel"
)

// RedisStore is the production authoritative store. Records live as plain
// string values; tombstone TTLs use Redis key expiry, so the store purges
// expired tombstones on its own.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed store. The client lifecycle is managed
// externally.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// List pages through keys under prefix using SCAN. Redis treats the count as
// a hint, so pages may be smaller or larger than limit; a page can even be
// empty while Complete is still false.
func (s *RedisStore) List(ctx context.Context, prefix, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		limit = 100
	}

	var scanCursor uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return Page{}, fmt.Errorf("malformed scan cursor %q: %w", cursor, err)
		}
		scanCursor = parsed
	}

	keys, next, err := s.client.Scan(ctx, scanCursor, prefix+"*", int64(limit)).Result()
	if err != nil {
		return Page{}, fmt.Errorf("redis scan %q: %w", prefix, err)
	}

	page := Page{Keys: keys, Complete: next == 0}
	if !page.Complete {
		page.Cursor = strconv.FormatUint(next, 10)
	}
	return page, nil
}
