package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "comanda:idempotency:"

// ResultStore remembers the response of a request by its idempotency key.
type ResultStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Reserve claims the key; false means another request already holds it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

var pendingMarker = []byte("pending")

// ErrInFlight means a request with the same key has not completed yet.
var ErrInFlight = errors.New("idempotency_key_in_flight")

type redisResultStore struct {
	client *redis.Client
}

func NewRedisResultStore(client *redis.Client) ResultStore {
	return &redisResultStore{client: client}
}

func (s *redisResultStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(value) == string(pendingMarker) {
		return nil, true, ErrInFlight
	}
	return value, true, nil
}

func (s *redisResultStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, idempotencyPrefix+key, pendingMarker, ttl).Result()
}

func (s *redisResultStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, idempotencyPrefix+key, value, ttl).Err()
}

func (s *redisResultStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyPrefix+key).Err()
}

type memoryResultStore struct {
	mu    sync.Mutex
	items Cache[string, []byte]
}

func NewMemoryResultStore(now func() time.Time) ResultStore {
	return &memoryResultStore{
		items: NewTTLCache[string, []byte](now),
	}
}

func (s *memoryResultStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok := s.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	if string(value) == string(pendingMarker) {
		return nil, true, ErrInFlight
	}
	return value, true, nil
}

func (s *memoryResultStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items.Get(key); ok {
		return false, nil
	}
	s.items.Set(key, pendingMarker, ttl)
	return true, nil
}

func (s *memoryResultStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.items.Set(key, value, ttl)
	return nil
}

func (s *memoryResultStore) Release(ctx context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

// NewResultStore picks the redis store when a client is available.
func NewResultStore(client *redis.Client) ResultStore {
	if client == nil {
		return NewMemoryResultStore(nil)
	}
	return NewRedisResultStore(client)
}
