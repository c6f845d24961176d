// Package redis is a structured storage tier backed by a Redis server, used
// when several devices of the same user share drafts.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizzard/internal/storage"
)

const scanCount = 100

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

type Backend struct {
	redis  redis.UniversalClient
	prefix string
}

func NewBackend(c Config) *Backend {
	return &Backend{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

func (b *Backend) Name() string { return "redis" }

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.redis.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return v, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.redis.Set(ctx, b.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.redis.Del(ctx, b.key(key)).Err(); err != nil {
		return fmt.Errorf("redis: del %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
		match  = escapeGlob(b.key(prefix)) + "*"
	)

	for {
		page, next, err := b.redis.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: scan %q: %w", prefix, err)
		}
		for _, k := range page {
			keys = append(keys, strings.TrimPrefix(k, b.ns()))
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.redis.Ping(ctx).Err()
}

func (b *Backend) ns() string {
	if b.prefix == "" {
		return ""
	}
	return b.prefix + ":"
}

func (b *Backend) key(k string) string {
	return b.ns() + k
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
