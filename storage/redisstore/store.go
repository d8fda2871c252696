// Package redisstore is the shared web backend: entries live in Redis under a
// per-installation key prefix.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const scanCount = 100

type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

func New(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Ready(ctx context.Context) bool {
	return s.rdb.Ping(ctx).Err() == nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redisstore.Set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redisstore.Get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redisstore.Remove %s: %w", key, err)
	}
	return nil
}

// Clear deletes only the keys under the store prefix.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.scan(ctx)
	if err != nil {
		return fmt.Errorf("redisstore.Clear: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redisstore.Clear: %w", err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("redisstore.Keys: %w", err)
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, s.prefix)
	}
	return keys, nil
}

func (s *Store) scan(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
