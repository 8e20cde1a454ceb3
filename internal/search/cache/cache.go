// Package cache stores query results in Redis. Keys are scoped to one
// search instance and one index generation, so a write to the index makes
// every earlier entry unreachable without a round-trip to Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
)

const keyPrefix = "hashtree:query:"

// Backend is the key/value store behind the cache. *redis.Client from
// pkg/redis satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend    Backend
	ttl        time.Duration
	instance   string
	generation atomic.Uint64
	group      singleflight.Group
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
}

func New(backend Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{
		backend:  backend,
		ttl:      ttl,
		instance: uuid.NewString(),
		logger:   slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached results for the query tokens.
func (c *QueryCache) Get(ctx context.Context, tokens []string) ([]hashtree.Record, bool) {
	return c.get(ctx, c.buildKey(tokens))
}

func (c *QueryCache) get(ctx context.Context, key string) ([]hashtree.Record, bool) {
	data, found, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if !found {
		c.misses.Add(1)
		return nil, false
	}
	var records []hashtree.Record
	if err := json.Unmarshal(data, &records); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if records == nil {
		records = []hashtree.Record{}
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key)
	return records, true
}

// Set stores results for the query tokens. Failures are logged only.
func (c *QueryCache) Set(ctx context.Context, tokens []string, records []hashtree.Record) {
	c.set(ctx, c.buildKey(tokens), records)
}

func (c *QueryCache) set(ctx context.Context, key string, records []hashtree.Record) {
	data, err := json.Marshal(records)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached results or runs computeFn once per key among
// concurrent callers and caches its result. The key is fixed before
// computeFn runs, so a Bump during the computation leaves the result under
// the old generation.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	tokens []string,
	computeFn func() ([]hashtree.Record, error),
) ([]hashtree.Record, bool, error) {
	key := c.buildKey(tokens)
	if records, ok := c.get(ctx, key); ok {
		return records, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		records, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, records)
		return records, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]hashtree.Record), false, nil
}

// Bump moves the cache to a new generation. Entries of older generations
// expire through their TTL.
func (c *QueryCache) Bump() {
	c.generation.Add(1)
}

// Invalidate bumps the generation and deletes every entry this instance
// has written.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	c.Bump()
	pattern := keyPrefix + c.instance + ":*"
	deleted, err := c.backend.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("%w: invalidating cache: %w", apperrors.ErrCacheUnavailable, err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the token sequence. Order matters: results of a
// multi-token query are concatenated per token.
func (c *QueryCache) buildKey(tokens []string) string {
	hash := sha256.Sum256([]byte(strings.Join(tokens, "\x00")))
	return fmt.Sprintf("%s%s:%d:%x", keyPrefix, c.instance, c.generation.Load(), hash[:16])
}
