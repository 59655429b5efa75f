package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store holds the known-good API base.
type Store interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, base string) error
	Delete(ctx context.Context) error
}

type MemoryStore struct {
	mu   sync.RWMutex
	base string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base, s.base != "", nil
}

func (s *MemoryStore) Set(ctx context.Context, base string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = base
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = ""
	return nil
}

// RedisStore shares the discovered base between processes. Entries expire
// after ttl so a stale base cannot outlive a redeploy forever.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (s *RedisStore) Get(ctx context.Context) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, val != "", nil
}

func (s *RedisStore) Set(ctx context.Context, base string) error {
	return s.client.Set(ctx, s.key, base, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
