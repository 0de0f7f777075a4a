// Package idempotency deduplicates retried state-changing requests such as
// approval decisions and dispensations. A key maps to the hash of the
// request that first used it and the JSON result it produced.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/digiurban/model"
)

// DefaultTTL is how long a key is remembered when the caller gives no TTL.
const DefaultTTL = 24 * time.Hour

// Store remembers results by key.
type Store interface {
	// Check looks up key. A hit with a different input hash is a CONFLICT.
	Check(ctx context.Context, key, inputHash string) (result json.RawMessage, found bool, err error)

	// Save stores result under key for ttl.
	Save(ctx context.Context, key, inputHash string, result json.RawMessage, ttl time.Duration) error
}

type entry struct {
	InputHash string          `json:"input_hash"`
	Result    json.RawMessage `json:"result"`
}

// Key builds the storage key of a client key within a scope, e.g. the gate
// or the operation it protects.
func Key(tenantID, scope, clientKey string) string {
	return fmt.Sprintf("idem:%s:%s:%s", tenantID, scope, clientKey)
}

// Hash returns a stable digest of v's JSON encoding.
func Hash(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash idempotent input: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Do returns the remembered result for key when input was seen before, and
// otherwise runs fn and remembers its result. A nil store or an empty key
// always runs fn. Errors from fn are not remembered.
func Do[T any](ctx context.Context, store Store, key string, input any, ttl time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if store == nil || key == "" {
		return fn()
	}
	hash, err := Hash(input)
	if err != nil {
		return zero, err
	}

	raw, found, err := store.Check(ctx, key, hash)
	if err != nil {
		return zero, err
	}
	if found {
		var cached T
		if err := json.Unmarshal(raw, &cached); err != nil {
			return zero, fmt.Errorf("decode idempotent result %q: %w", key, err)
		}
		return cached, nil
	}

	out, err := fn()
	if err != nil {
		return zero, err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return zero, fmt.Errorf("encode idempotent result: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := store.Save(ctx, key, hash, data, ttl); err != nil {
		return zero, err
	}
	return out, nil
}

func conflict(key string) error {
	return model.NewConflictError(
		fmt.Sprintf("Chave de idempotência %q já utilizada com outra requisição", key),
	)
}

// MemoryStore is an in-memory Store with TTL. For tests and single-instance
// deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	data      entry
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

func (s *MemoryStore) Check(_ context.Context, key, inputHash string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	if e.data.InputHash != inputHash {
		return nil, true, conflict(key)
	}
	return e.data.Result, true, nil
}

func (s *MemoryStore) Save(_ context.Context, key, inputHash string, result json.RawMessage, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{
		data:      entry{InputHash: inputHash, Result: result},
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Len returns the number of entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// RedisStore is a Redis-backed Store.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a store on client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Check(ctx context.Context, key, inputHash string) (json.RawMessage, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("unmarshal idempotency entry %q: %w", key, err)
	}
	if e.InputHash != inputHash {
		return nil, true, conflict(key)
	}
	return e.Result, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key, inputHash string, result json.RawMessage, ttl time.Duration) error {
	data, err := json.Marshal(entry{InputHash: inputHash, Result: result})
	if err != nil {
		return fmt.Errorf("marshal idempotency entry: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// HealthCheck pings the Redis server.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
