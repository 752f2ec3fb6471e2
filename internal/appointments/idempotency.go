package appointments

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers results by request token so a retried request
// returns the original result instead of executing again.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Put(ctx context.Context, key string, res Result) error
}

// RedisIdempotencyStore keeps results in Redis with a TTL.
type RedisIdempotencyStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisIdempotencyStore creates a store; ttl defaults to 24h.
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if client == nil {
		panic("appointments: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{redis: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*Result, bool, error) {
	data, err := s.redis.Get(ctx, idempotencyKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("appointments: load idempotent result: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("appointments: decode idempotent result: %w", err)
	}
	return &res, true, nil
}

func (s *RedisIdempotencyStore) Put(ctx context.Context, key string, res Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("appointments: encode idempotent result: %w", err)
	}
	// first writer wins
	if err := s.redis.SetNX(ctx, idempotencyKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("appointments: store idempotent result: %w", err)
	}
	return nil
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// MemoryIdempotencyStore is an in-process IdempotencyStore.
type MemoryIdempotencyStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	entries   map[string]memoryEntry
	nextSweep time.Time
}

type memoryEntry struct {
	res     Result
	expires time.Time
}

// NewMemoryIdempotencyStore creates a store; ttl defaults to 24h.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryIdempotencyStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (*Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if s.now().After(e.expires) {
		delete(s.entries, key)
		return nil, false, nil
	}
	res := e.res
	return &res, true, nil
}

func (s *MemoryIdempotencyStore) Put(_ context.Context, key string, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.After(s.nextSweep) {
		for k, e := range s.entries {
			if now.After(e.expires) {
				delete(s.entries, k)
			}
		}
		s.nextSweep = now.Add(s.ttl / 4)
	}
	if e, ok := s.entries[key]; ok && !now.After(e.expires) {
		return nil
	}
	s.entries[key] = memoryEntry{res: res, expires: now.Add(s.ttl)}
	return nil
}

// Len reports how many tokens are held, expired or not.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
