// Package cache holds short-lived keys shared by every replica: rate-limit
// counters and consumed password-reset tokens.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

type Store interface {
	// SetNX stores key for ttl and reports whether it was absent.
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Incr bumps the counter for key and returns the new value. The counter
	// expires window after its first increment.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Del removes key. A missing key is not an error.
	Del(ctx context.Context, key string) error
	Close() error
}

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to instrument redis: %w", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, s.prefix+key)
		pipe.ExpireNX(ctx, s.prefix+key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type memoryEntry struct {
	count   int64
	expires time.Time
}

// MemoryStore is the single-process fallback when no Redis is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) SetNX(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	s.entries[key] = &memoryEntry{count: 1, expires: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || !now.Before(e.expires) {
		e = &memoryEntry{expires: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// sweep drops expired entries; callers hold mu.
func (s *MemoryStore) sweep(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
}
