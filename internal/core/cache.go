// Package core provides the business logic and service layer for the auditcore system.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openregistrar/auditcore/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetTTL updates the TTL for an existing key.
	// Returns true if the key exists and TTL was updated.
	SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	// This is useful for implementing distributed locks and deduplication.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// MemoCacheService layers a read-through cache over memo lookups. Memo rows
// never change after being written, so cached copies need no invalidation
// beyond their TTL.
type MemoCacheService struct {
	cache CacheRepository
	memos MemoRepository
	ttl   time.Duration
}

// MemoCacheConfig holds configuration for memo caching.
type MemoCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// MemoCacheServiceOptions bundles dependencies for NewMemoCacheService.
type MemoCacheServiceOptions struct {
	Cache  CacheRepository
	Memos  MemoRepository
	Config MemoCacheConfig
}

// DefaultMemoCacheConfig returns a MemoCacheConfig with sensible defaults.
func DefaultMemoCacheConfig() MemoCacheConfig {
	return MemoCacheConfig{
		TTL: 6 * time.Hour, // memos are immutable; TTL only bounds cache size
	}
}

// NewMemoCacheService creates a new MemoCacheService.
func NewMemoCacheService(opts MemoCacheServiceOptions) *MemoCacheService {
	return &MemoCacheService{
		cache: opts.Cache,
		memos: opts.Memos,
		ttl:   opts.Config.TTL,
	}
}

// Lookup returns the newest memo for the student's (clause hash, snapshot
// hash) pair, consulting the cache before the database. Database misses
// propagate as NotFound.
func (s *MemoCacheService) Lookup(ctx context.Context, params MemoLookupParams) (*model.MemoEntry, error) {
	key := s.memoKey(params)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err == nil && len(cached) > 0 {
			var memo model.MemoEntry
			if err := json.Unmarshal(cached, &memo); err == nil {
				return &memo, nil
			}
			// Corrupt cache entries fall through to the database.
			_, _ = s.cache.Delete(ctx, key)
		}
	}

	memo, err := s.memos.Lookup(ctx, params)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(memo); err == nil {
			// SetIfNotExists keeps the first written copy; concurrent
			// fill attempts resolve to the same immutable content.
			_, _ = s.cache.SetIfNotExists(ctx, key, encoded, s.ttl)
		}
	}

	return memo, nil
}

// ListByResult passes through to the repository; per-result listings are
// only used by inspection endpoints and are not worth caching.
func (s *MemoCacheService) ListByResult(ctx context.Context, resultID string) ([]*model.MemoEntry, error) {
	return s.memos.ListByResult(ctx, resultID)
}

// memoKey generates a cache key for a memo lookup. The snapshot hash is part
// of the key so cached memos from a stale course snapshot never surface.
func (s *MemoCacheService) memoKey(params MemoLookupParams) string {
	return "memo:" + params.StudentID + ":" + params.SnapshotHash + ":" + params.ClauseHash
}
