// Package idempotency deduplicates mutation requests. Browsers retry
// failed form submissions; an X-Idempotency-Key header lets a retried
// create or delete replay the original outcome instead of hitting the
// backend twice.
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

	"github.com/billtrack/bff/model"
)

// Outcome is the replayable result of a mutation: the HTTP status and
// response body the BFF originally returned.
type Outcome struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

// Store provides deduplication for mutation requests.
// The key format is "idem:{resource}:{key}".
type Store interface {
	// Check looks up a previous outcome by key. If the key exists and the
	// input hash matches, it returns the cached outcome. If the key exists
	// but the hash differs, it returns a 409 conflict error.
	Check(ctx context.Context, key string, inputHash string) (outcome *Outcome, found bool, err error)

	// Store saves a mutation outcome keyed by the idempotency key with a TTL.
	Store(ctx context.Context, key string, inputHash string, outcome Outcome, ttl time.Duration) error
}

// entry is the stored value for an idempotency key.
type entry struct {
	InputHash string  `json:"input_hash"`
	Outcome   Outcome `json:"outcome"`
}

// HashInput fingerprints a request body so a reused key with different
// input can be rejected.
func HashInput(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// FormatKey builds the standard idempotency key.
func FormatKey(resource, key string) string {
	return fmt.Sprintf("idem:%s:%s", resource, key)
}

// --- MemoryStore ---

// MemoryStore is an in-memory Store with TTL support. Suitable for
// testing and single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

type memEntry struct {
	data      entry
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
	}
}

// Check looks up a cached outcome. Returns conflict error if input hash differs.
func (s *MemoryStore) Check(_ context.Context, key string, inputHash string) (*Outcome, bool, error) {
	s.mu.RLock()
	e, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	// Check TTL.
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	// Input hash mismatch → conflict.
	if e.data.InputHash != inputHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used with different input", key),
		)
	}

	outcome := e.data.Outcome
	return &outcome, true, nil
}

// Store saves an outcome with TTL.
func (s *MemoryStore) Store(_ context.Context, key string, inputHash string, outcome Outcome, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memEntry{
		data: entry{
			InputHash: inputHash,
			Outcome:   outcome,
		},
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// --- RedisStore ---

// RedisStore is a Redis-backed Store with TTL.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a new Redis-backed idempotency store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Check looks up a cached outcome in Redis. Returns conflict error if input hash differs.
func (s *RedisStore) Check(ctx context.Context, key string, inputHash string) (*Outcome, bool, error) {
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

	// Input hash mismatch → conflict.
	if e.InputHash != inputHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used with different input", key),
		)
	}

	return &e.Outcome, true, nil
}

// Store saves an outcome in Redis with TTL.
func (s *RedisStore) Store(ctx context.Context, key string, inputHash string, outcome Outcome, ttl time.Duration) error {
	e := entry{
		InputHash: inputHash,
		Outcome:   outcome,
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal idempotency entry: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// HealthCheck pings redis so the readiness endpoint can report on it.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
